// Package sample holds the static data shown on the service desk, asset,
// server monitor and training pages. Every date is a fixed offset from the
// clock passed to Load, so the data set is reproducible under a frozen clock.
package sample

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// Incident priorities.
const (
	PriorityCritical = "Critical"
	PriorityHigh     = "High"
	PriorityMedium   = "Medium"
	PriorityLow      = "Low"
)

// Incident statuses.
const (
	StatusOpen       = "Open"
	StatusInProgress = "In Progress"
	StatusResolved   = "Resolved"
	StatusClosed     = "Closed"
)

// Incident is a service desk ticket.
type Incident struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Priority string    `json:"priority"`
	Status   string    `json:"status"`
	Assignee string    `json:"assignee"`
	Category string    `json:"category"`
	OpenedAt time.Time `json:"opened_at"`
	AgeHours float64   `json:"age_hours"`
}

// Field implements filter.Record.
func (i Incident) Field(name string) (any, bool) {
	switch name {
	case "id":
		return i.ID, true
	case "title":
		return i.Title, true
	case "priority":
		return i.Priority, true
	case "status":
		return i.Status, true
	case "assignee":
		return i.Assignee, true
	case "category":
		return i.Category, true
	case "opened_at":
		return i.OpenedAt, true
	case "age_hours":
		return i.AgeHours, true
	}
	return nil, false
}

// Asset is a tracked hardware or software asset.
type Asset struct {
	Tag              string    `json:"tag"`
	Name             string    `json:"name"`
	Type             string    `json:"type"`
	Location         string    `json:"location"`
	Owner            string    `json:"owner"`
	Status           string    `json:"status"`
	Cost             float64   `json:"cost"`
	PurchaseDate     time.Time `json:"purchase_date"`
	WarrantyExpiry   time.Time `json:"warranty_expiry"`
	WarrantyDaysLeft int       `json:"warranty_days_left"`
}

// Field implements filter.Record.
func (a Asset) Field(name string) (any, bool) {
	switch name {
	case "tag":
		return a.Tag, true
	case "name":
		return a.Name, true
	case "type":
		return a.Type, true
	case "location":
		return a.Location, true
	case "owner":
		return a.Owner, true
	case "status":
		return a.Status, true
	case "cost":
		return a.Cost, true
	case "purchase_date":
		return a.PurchaseDate, true
	case "warranty_expiry":
		return a.WarrantyExpiry, true
	case "warranty_days_left":
		return a.WarrantyDaysLeft, true
	}
	return nil, false
}

// MonitoredServer is a row of the server monitor page.
type MonitoredServer struct {
	Name       string    `json:"name"`
	IPAddress  string    `json:"ip_address"`
	Role       string    `json:"role"`
	OS         string    `json:"os"`
	CPUPct     float64   `json:"cpu_pct"`
	MemPct     float64   `json:"mem_pct"`
	DiskPct    float64   `json:"disk_pct"`
	Status     string    `json:"status"` // "online", "warning", "critical", "offline"
	UptimeDays int       `json:"uptime_days"`
	LastSeen   time.Time `json:"last_seen"`
}

// Field implements filter.Record.
func (s MonitoredServer) Field(name string) (any, bool) {
	switch name {
	case "name":
		return s.Name, true
	case "ip_address":
		return s.IPAddress, true
	case "role":
		return s.Role, true
	case "os":
		return s.OS, true
	case "cpu_pct":
		return s.CPUPct, true
	case "mem_pct":
		return s.MemPct, true
	case "disk_pct":
		return s.DiskPct, true
	case "status":
		return s.Status, true
	case "uptime_days":
		return s.UptimeDays, true
	case "last_seen":
		return s.LastSeen, true
	}
	return nil, false
}

// Course is a training centre course.
type Course struct {
	Title         string    `json:"title"`
	Track         string    `json:"track"`
	Level         string    `json:"level"` // "Foundation", "Practitioner", "Expert"
	DurationHours int       `json:"duration_hours"`
	Seats         int       `json:"seats"`
	Enrolled      int       `json:"enrolled"`
	StartsAt      time.Time `json:"starts_at"`
}

// SeatsLeft returns the number of unfilled seats.
func (c Course) SeatsLeft() int { return c.Seats - c.Enrolled }

// Field implements filter.Record.
func (c Course) Field(name string) (any, bool) {
	switch name {
	case "title":
		return c.Title, true
	case "track":
		return c.Track, true
	case "level":
		return c.Level, true
	case "duration_hours":
		return c.DurationHours, true
	case "seats":
		return c.Seats, true
	case "enrolled":
		return c.Enrolled, true
	case "seats_left":
		return c.SeatsLeft(), true
	case "starts_at":
		return c.StartsAt, true
	}
	return nil, false
}

// Data is the full static data set.
type Data struct {
	Now       time.Time         `json:"now"`
	Incidents []Incident        `json:"incidents"`
	Assets    []Asset           `json:"assets"`
	Servers   []MonitoredServer `json:"servers"`
	Courses   []Course          `json:"courses"`
}

// Load builds the data set relative to now.
func Load(now time.Time) *Data {
	now = now.Truncate(time.Second)
	d := &Data{Now: now}

	for _, r := range incidentRows {
		opened := now.Add(-r.openedAgo)
		d.Incidents = append(d.Incidents, Incident{
			ID:       r.id,
			Title:    r.title,
			Priority: r.priority,
			Status:   r.status,
			Assignee: r.assignee,
			Category: r.category,
			OpenedAt: opened,
			AgeHours: math.Round(r.openedAgo.Hours()*10) / 10,
		})
	}

	for _, r := range assetRows {
		purchased := now.Add(-r.purchasedAgo)
		expiry := purchased.AddDate(r.warrantyYears, 0, 0)
		d.Assets = append(d.Assets, Asset{
			Tag:              r.tag,
			Name:             r.name,
			Type:             r.kind,
			Location:         r.location,
			Owner:            r.owner,
			Status:           r.status,
			Cost:             r.cost,
			PurchaseDate:     purchased,
			WarrantyExpiry:   expiry,
			WarrantyDaysLeft: daysUntil(now, expiry),
		})
	}

	for _, r := range serverRows {
		d.Servers = append(d.Servers, MonitoredServer{
			Name:       r.name,
			IPAddress:  r.ip,
			Role:       r.role,
			OS:         r.os,
			CPUPct:     r.cpu,
			MemPct:     r.mem,
			DiskPct:    r.disk,
			Status:     r.status,
			UptimeDays: r.uptimeDays,
			LastSeen:   now.Add(-r.seenAgo),
		})
	}

	for _, r := range courseRows {
		d.Courses = append(d.Courses, Course{
			Title:         r.title,
			Track:         r.track,
			Level:         r.level,
			DurationHours: r.hours,
			Seats:         r.seats,
			Enrolled:      r.enrolled,
			StartsAt:      now.Add(r.startsIn),
		})
	}
	return d
}

// daysUntil returns whole days from now to t, negative once t has passed.
func daysUntil(now, t time.Time) int {
	return int(math.Floor(t.Sub(now).Hours() / 24))
}
