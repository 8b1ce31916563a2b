package refdata

// CachedAddress is one province/district/municipality tuple of the address
// taxonomy. Rows are purely derived from the remote source and rebuildable
// at any time.
type CachedAddress struct {
	ID           uint   `gorm:"column:id;primaryKey;autoIncrement"`
	Province     string `gorm:"column:province;size:190;not null;index:idx_cached_addresses_province;index:idx_cached_addresses_province_district,priority:1"`
	District     string `gorm:"column:district;size:190;not null;index:idx_cached_addresses_province_district,priority:2"`
	Municipality string `gorm:"column:municipality;size:190;not null"`
}

// TableName provides the explicit table binding for GORM.
func (CachedAddress) TableName() string {
	return "cached_addresses"
}

// CachedIncident is a locally cached incident descriptor keyed by the
// server-assigned identifier.
type CachedIncident struct {
	ID          int64   `gorm:"column:id;primaryKey"`
	Name        string  `gorm:"column:name;size:320;not null"`
	Type        string  `gorm:"column:type;size:190;not null"`
	StartsAt    *string `gorm:"column:starts_at;size:64"`
	EndsAt      *string `gorm:"column:ends_at;size:64"`
	IsActive    bool    `gorm:"column:is_active;not null;default:false;index:idx_cached_incidents_active"`
	Description string  `gorm:"column:description;type:text;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (CachedIncident) TableName() string {
	return "cached_incidents"
}
