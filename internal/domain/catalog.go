package domain

// CatalogEntry represents an uploaded database or document folder
type CatalogEntry struct {
	ID          string  `json:"_id"`
	DBName      string  `json:"db_name"`
	Visibility  string  `json:"visibility"`
	FolderType  string  `json:"folder_type,omitempty"`
	NumFiles    int     `json:"num_files"`
	TotalSizeMB float64 `json:"total_size_mb"`
	UploadTime  string  `json:"upload_time,omitempty"`
}
