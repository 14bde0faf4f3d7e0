package models

import "time"

// Import task kinds tracked per month.
const (
	TaskResults  = "results"  // K-files
	TaskPrograms = "programs" // B-files
)

// Import progress states.
const (
	ImportPending   = "pending"
	ImportRunning   = "running"
	ImportCompleted = "completed"
	ImportFailed    = "failed"
)

// ImportProgress tracks the archive import of one (task, month).
type ImportProgress struct {
	TaskKind     string     `gorm:"column:task_kind;type:varchar(16);primaryKey" json:"task_kind"`
	YearMonth    string     `gorm:"column:year_month;type:varchar(7);primaryKey" json:"year_month"`
	Status       string     `gorm:"column:status;type:varchar(16);not null" json:"status"`
	RunID        string     `gorm:"column:run_id;type:varchar(36)" json:"run_id"`
	DaysImported int        `gorm:"column:days_imported;not null;default:0" json:"days_imported"`
	RecordsCount int        `gorm:"column:records_count;not null;default:0" json:"records_count"`
	ErrorMessage string     `gorm:"column:error_message" json:"error_message,omitempty"`
	StartedAt    *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt  *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (ImportProgress) TableName() string { return "import_progress" }

// All lists every table model for migrations and health checks.
func All() []interface{} {
	return []interface{}{
		&Race{}, &ProgramEntry{}, &ResultEntry{}, &Payoff{},
		&OddsTick{}, &VirtualBet{}, &VirtualFund{}, &ImportProgress{},
	}
}
