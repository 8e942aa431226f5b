package domain

import "time"

type AppSettings struct {
	Maintenance      bool       `json:"maintenance"`
	DownloadEnabled  bool       `json:"downloadEnabled"`
	MaxFreeDownloads int        `json:"maxFreeDownloads"`
	Announcements    []string   `json:"announcements"`
	UpdatedAt        *time.Time `json:"updatedAt,omitempty"`
}

func DefaultAppSettings() AppSettings {
	return AppSettings{
		Maintenance:      false,
		DownloadEnabled:  true,
		MaxFreeDownloads: 3,
		Announcements:    []string{},
	}
}

// SettingsPatch carries only the fields a caller explicitly provided.
type SettingsPatch struct {
	Maintenance      *bool
	DownloadEnabled  *bool
	MaxFreeDownloads *int
	Announcements    []string
	HasAnnouncements bool
}

func (s AppSettings) Apply(p SettingsPatch) AppSettings {
	if p.Maintenance != nil {
		s.Maintenance = *p.Maintenance
	}
	if p.DownloadEnabled != nil {
		s.DownloadEnabled = *p.DownloadEnabled
	}
	if p.MaxFreeDownloads != nil {
		s.MaxFreeDownloads = *p.MaxFreeDownloads
	}
	if p.HasAnnouncements {
		s.Announcements = append([]string{}, p.Announcements...)
	}
	return s
}
