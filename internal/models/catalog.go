package models

// ServiceCatalog is the fixed list of primary services a job or profile may reference.
var ServiceCatalog = []string{
	"Plumbing",
	"Electrical",
	"Carpentry",
	"Painting",
	"Roofing",
	"Welding",
	"Tiling",
	"Interior Design",
	"Landscaping",
	"Masonry",
	"AC Repair",
	"Woodwork",
	"Auto Repair",
}

// ServiceOther selects the free-text custom service.
const ServiceOther = "other"

func IsCatalogService(name string) bool {
	for _, s := range ServiceCatalog {
		if s == name {
			return true
		}
	}
	return false
}
