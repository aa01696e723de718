package core

import (
	"errors"
	"strings"
	"time"
)

type (
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Contract is one normalized contract row. It is passed by value and never
	// mutated once built.
	Contract struct {
		ID          string
		Name        string
		Category    string // Service type; grouping never crosses categories
		Start       Date
		End         Date
		Cost        Money
		Maintenance Money
	}
)

var (
	ErrEmptyID       = errors.New("empty contract id")
	ErrEmptyCategory = errors.New("empty category")
	ErrZeroDate      = errors.New("date cannot be zero")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrZeroDate
	}
	return nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

// TotalCost is cost plus maintenance.
func (c Contract) TotalCost() Money {
	return c.Cost.Add(c.Maintenance)
}

// Span returns the interval used for overlap detection. A contract whose
// start is after its end collapses to the single instant at its start.
func (c Contract) Span() (start, end time.Time) {
	if c.End.Before(c.Start.Time) {
		return c.Start.Time, c.Start.Time
	}
	return c.Start.Time, c.End.Time
}

// Inverted reports whether the contract ends before it starts.
func (c Contract) Inverted() bool {
	return c.End.Before(c.Start.Time)
}

func (c Contract) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(c.Category) == "" {
		return ErrEmptyCategory
	}
	if err := c.Start.Validate(); err != nil {
		return errors.New("invalid start date: " + err.Error())
	}
	if err := c.End.Validate(); err != nil {
		return errors.New("invalid end date: " + err.Error())
	}
	return nil
}
