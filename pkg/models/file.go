package models

// FileRecord is the persisted model of one tracked source file. The
// assistant's CRUD layer owns these rows; the watchdog only reads them,
// except for the modification marker which it may fast-forward.
type FileRecord struct {
	ID              int64  `db:"id" json:"id"`
	Path            string `db:"path" json:"path"`
	IsReserved      bool   `db:"is_reserved" json:"is_reserved"`
	IsFinalized     bool   `db:"is_finalized" json:"is_finalized"`
	ModifiedAtEpoch int64  `db:"modified_at_epoch" json:"modified_at_epoch"`
	CreatedAt       string `db:"created_at" json:"created_at"`
	UpdatedAt       string `db:"updated_at" json:"updated_at"`
}

// FunctionRecord is the persisted model of one declared function
// belonging to a file.
type FunctionRecord struct {
	ID          int64  `db:"id" json:"id"`
	FileID      int64  `db:"file_id" json:"file_id"`
	Name        string `db:"name" json:"name"`
	IsReserved  bool   `db:"is_reserved" json:"is_reserved"`
	IsFinalized bool   `db:"is_finalized" json:"is_finalized"`
}
