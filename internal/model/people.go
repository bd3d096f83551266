package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Location struct {
	ID      string `json:"id" validate:"required"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Tag     string `json:"tag,omitempty"`
}

// Same compares locations by identity, falling back to address for unsaved ones.
func (l Location) Same(o Location) bool {
	if l.ID != "" || o.ID != "" {
		return l.ID == o.ID
	}
	return l.Address == o.Address
}

// RiderRef is either a bare reference (ID only) or a hydrated rider.
type RiderRef struct {
	ID        string `json:"id" validate:"required"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
}

func (r RiderRef) Hydrated() bool { return r.Email != "" }

func (r RiderRef) FullName() string { return fullName(r.FirstName, r.LastName) }

type DriverRef struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
}

func (d DriverRef) FullName() string { return fullName(d.FirstName, d.LastName) }

func fullName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

type Rider struct {
	ID        string    `json:"id" db:"id"`
	FirstName string    `json:"firstName" db:"first_name"`
	LastName  string    `json:"lastName" db:"last_name"`
	Email     string    `json:"email" db:"email"`
	Phone     string    `json:"phone" db:"phone"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

func (r *Rider) Ref() RiderRef {
	return RiderRef{ID: r.ID, FirstName: r.FirstName, LastName: r.LastName, Email: r.Email}
}

type Driver struct {
	ID           string       `json:"id" db:"id"`
	FirstName    string       `json:"firstName" db:"first_name"`
	LastName     string       `json:"lastName" db:"last_name"`
	Email        string       `json:"email" db:"email"`
	Phone        string       `json:"phone" db:"phone"`
	Availability Availability `json:"availability" db:"availability"`
}

func (d *Driver) Ref() DriverRef {
	return DriverRef{ID: d.ID, FirstName: d.FirstName, LastName: d.LastName, Email: d.Email}
}

// AvailableFor reports whether the driver's weekly window covers [start, end] on
// start's weekday, evaluated in loc.
func (d *Driver) AvailableFor(start, end time.Time, loc *time.Location) bool {
	return d.Availability.Covers(start.In(loc), end.In(loc))
}

// Weekday is zero-based with Sunday = 0, matching time.Weekday.
type Weekday int

const (
	Sunday Weekday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

func WeekdayOf(t time.Time) Weekday { return Weekday(t.Weekday()) }

func (w Weekday) Valid() bool { return w >= Sunday && w <= Saturday }

func (w Weekday) String() string { return time.Weekday(w).String() }

// DayWindow is a daily availability window in minutes after midnight.
type DayWindow struct {
	StartMinute int `json:"startMinute"`
	EndMinute   int `json:"endMinute"`
}

// Availability is indexed by Weekday. A nil entry means unavailable that day.
type Availability [7]*DayWindow

func (a Availability) Covers(start, end time.Time) bool {
	w := WeekdayOf(start)
	win := a[w]
	if win == nil {
		return false
	}
	if WeekdayOf(end) != w {
		return false
	}
	s := start.Hour()*60 + start.Minute()
	e := end.Hour()*60 + end.Minute()
	return s >= win.StartMinute && e <= win.EndMinute
}

// Set installs a window given "15:04" strings.
func (a *Availability) Set(day Weekday, from, to string) error {
	if !day.Valid() {
		return fmt.Errorf("invalid weekday %d", day)
	}
	f, err := time.Parse("15:04", from)
	if err != nil {
		return fmt.Errorf("invalid start time %q: %w", from, err)
	}
	t, err := time.Parse("15:04", to)
	if err != nil {
		return fmt.Errorf("invalid end time %q: %w", to, err)
	}
	a[day] = &DayWindow{StartMinute: f.Hour()*60 + f.Minute(), EndMinute: t.Hour()*60 + t.Minute()}
	return nil
}

// Value stores availability as a JSON document.
func (a Availability) Value() (driver.Value, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (a *Availability) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = Availability{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported availability type %T", src)
	}
	return json.Unmarshal(raw, a)
}
