package models

// GeoLocation is the ip-api.com lookup response
type GeoLocation struct {
	Status      string  `json:"status"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	Region      string  `json:"region"`
	RegionName  string  `json:"regionName"`
	City        string  `json:"city"`
	Zip         string  `json:"zip"`
	Latitude    float64 `json:"lat"`
	Longitude   float64 `json:"lon"`
	Timezone    string  `json:"timezone"`
	ISP         string  `json:"isp"`
	Org         string  `json:"org"`
	AS          string  `json:"as"`
	Query       string  `json:"query"`
}

// IsValid checks if the geo location data is valid
func (g *GeoLocation) IsValid() bool {
	return g.Status == "success" && g.Country != ""
}

// HostDetail is the resolved network location of a node's host
type HostDetail struct {
	IP           string  `json:"ip" bson:"ip"`
	Country      string  `json:"country" bson:"country"`
	CountryCode  string  `json:"countryCode" bson:"countryCode"`
	Region       string  `json:"region,omitempty" bson:"region,omitempty"`
	City         string  `json:"city" bson:"city"`
	Latitude     float64 `json:"latitude" bson:"latitude"`
	Longitude    float64 `json:"longitude" bson:"longitude"`
	Timezone     string  `json:"timezone,omitempty" bson:"timezone,omitempty"`
	Organization string  `json:"organization,omitempty" bson:"organization,omitempty"`
	AS           string  `json:"as,omitempty" bson:"as,omitempty"`
}

// ToHostDetail converts an ip-api response into the stored form
func (g *GeoLocation) ToHostDetail() *HostDetail {
	return &HostDetail{
		IP:           g.Query,
		Country:      g.Country,
		CountryCode:  g.CountryCode,
		Region:       g.RegionName,
		City:         g.City,
		Latitude:     g.Latitude,
		Longitude:    g.Longitude,
		Timezone:     g.Timezone,
		Organization: g.Org,
		AS:           g.AS,
	}
}
