package entities

import "time"

// ReviewPlatformLink is a public review destination configured by the business owner.
type ReviewPlatformLink struct {
	Name string `json:"name" yaml:"name" db:"name"`
	URL  string `json:"url" yaml:"url" db:"url"`
}

// Address represents a physical address
type Address struct {
	Street  string `json:"street,omitempty" yaml:"street" db:"street"`
	City    string `json:"city,omitempty" yaml:"city" db:"city"`
	State   string `json:"state,omitempty" yaml:"state" db:"state"`
	ZipCode string `json:"zip_code,omitempty" yaml:"zip_code" db:"zip_code"`
	Country string `json:"country,omitempty" yaml:"country" db:"country"`
}

// Location is a single business being rated. It owns its review platform configuration.
type Location struct {
	ID              string               `json:"id" yaml:"id" db:"id"`
	Name            string               `json:"name" yaml:"name" db:"name"`
	LogoURL         string               `json:"logo_url,omitempty" yaml:"logo_url" db:"logo_url"`
	ReviewPlatforms []ReviewPlatformLink `json:"review_platforms" yaml:"review_platforms" db:"-"`
	Address         *Address             `json:"address,omitempty" yaml:"address" db:"-"`
	UpdatedAt       time.Time            `json:"updated_at,omitempty" yaml:"-" db:"updated_at"`
}
