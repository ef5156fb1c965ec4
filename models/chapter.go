package models

// Chapter is an orderable sub-item of a title. The library core only reads
// chapters; the chapter sync pipeline owns the rows.
type Chapter struct {
	ID           int64  `json:"id"`
	TitleID      int64  `json:"mangaId"`
	Name         string `json:"name"`
	SourceOrder  int64  `json:"index"` // position within the title, higher = newer
	IsRead       bool   `json:"read"`
	IsDownloaded bool   `json:"downloaded"`
}
