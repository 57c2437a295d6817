package model

import (
	"time"

	"github.com/roach88/crm/internal/errs"
)

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectPlanning   ProjectStatus = "planning"
	ProjectInProgress ProjectStatus = "in-progress"
	ProjectOnHold     ProjectStatus = "on-hold"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectCancelled  ProjectStatus = "cancelled"
)

// TaskStatus is the state of a task.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in-progress"
	TaskCompleted  TaskStatus = "completed"
)

// Priority ranks tasks.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// InvoiceStatus is the billing state of an invoice.
type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoiceSent      InvoiceStatus = "sent"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceOverdue   InvoiceStatus = "overdue"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// GoalStatus is the state of a goal.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalAbandoned GoalStatus = "abandoned"
)

// Contact is a person.
type Contact struct {
	Base
	Name     string   `json:"name"`
	Email    string   `json:"email,omitempty"`
	Phone    string   `json:"phone,omitempty"`
	Company  string   `json:"company,omitempty"`
	Title    string   `json:"title,omitempty"`
	Notes    string   `json:"notes,omitempty"`
	Avatar   string   `json:"avatar,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Favorite bool     `json:"favorite"`
}

// Normalize stores tags in their canonical form.
func (c *Contact) Normalize() { c.Tags = normalizeTags(c.Tags) }

func (c *Contact) Validate() error {
	if err := required("contact", "name", c.Name); err != nil {
		return err
	}
	return validTags("contact", c.Tags)
}

// Project groups tasks, events and time for one or more contacts.
// TaskIDs is maintained by the caller; see queries.ProjectTaskIDs.
type Project struct {
	Base
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	Status        ProjectStatus `json:"status"`
	StartDate     *time.Time    `json:"startDate,omitempty"`
	DueDate       *time.Time    `json:"dueDate,omitempty"`
	CompletedDate *time.Time    `json:"completedDate,omitempty"`
	ContactIDs    []string      `json:"contactIds,omitempty"`
	TaskIDs       []string      `json:"taskIds,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	Color         string        `json:"color,omitempty"`
}

func (p *Project) Validate() error {
	if err := required("project", "name", p.Name); err != nil {
		return err
	}
	return oneOf("project", "status", p.Status,
		ProjectPlanning, ProjectInProgress, ProjectOnHold, ProjectCompleted, ProjectCancelled)
}

// Task is a unit of work, optionally linked to a project, an invoice or a
// contact through Related.
type Task struct {
	Base
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Status        TaskStatus `json:"status"`
	Priority      Priority   `json:"priority"`
	DueDate       *time.Time `json:"dueDate,omitempty"`
	ReminderDate  *time.Time `json:"reminderDate,omitempty"`
	CompletedDate *time.Time `json:"completedDate,omitempty"`
	ProjectID     string     `json:"projectId,omitempty"`
	ContactIDs    []string   `json:"contactIds,omitempty"`
	Related       *Related   `json:"related,omitempty"`
}

func (t *Task) Validate() error {
	if err := required("task", "title", t.Title); err != nil {
		return err
	}
	if err := oneOf("task", "status", t.Status, TaskTodo, TaskInProgress, TaskCompleted); err != nil {
		return err
	}
	if err := oneOf("task", "priority", t.Priority, PriorityLow, PriorityMedium, PriorityHigh); err != nil {
		return err
	}
	return validateRelated("task", t.Related, TaskRelatedKinds)
}

// Event is a calendar entry. Overlaps are not checked.
type Event struct {
	Base
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
	AllDay      bool      `json:"allDay"`
	Location    string    `json:"location,omitempty"`
	Color       string    `json:"color,omitempty"`
	ProjectID   string    `json:"projectId,omitempty"`
	ContactIDs  []string  `json:"contactIds,omitempty"`
}

func (e *Event) Validate() error {
	if err := required("event", "title", e.Title); err != nil {
		return err
	}
	if err := requiredTime("event", "startDate", e.StartDate); err != nil {
		return err
	}
	if err := requiredTime("event", "endDate", e.EndDate); err != nil {
		return err
	}
	if e.EndDate.Before(e.StartDate) {
		return errs.Invalid("event", "endDate", "ends before it starts")
	}
	return nil
}

// Note is free text attached to a project, contact or task.
type Note struct {
	Base
	Title   string   `json:"title,omitempty"`
	Content string   `json:"content"`
	Related *Related `json:"related,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

func (n *Note) Normalize() { n.Tags = normalizeTags(n.Tags) }

func (n *Note) Validate() error {
	if err := required("note", "content", n.Content); err != nil {
		return err
	}
	if err := validTags("note", n.Tags); err != nil {
		return err
	}
	return validateRelated("note", n.Related, NoteRelatedKinds)
}

// Document is a file stored inline.
type Document struct {
	Base
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	FileData    []byte   `json:"fileData,omitempty"`
	FileType    string   `json:"fileType,omitempty"`
	FileSize    int64    `json:"fileSize"`
	Related     *Related `json:"related,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

func (d *Document) Normalize() { d.Tags = normalizeTags(d.Tags) }

func (d *Document) Validate() error {
	if err := required("document", "name", d.Name); err != nil {
		return err
	}
	if err := validTags("document", d.Tags); err != nil {
		return err
	}
	if d.FileSize < 0 {
		return errs.Invalid("document", "fileSize", "must not be negative, got %d", d.FileSize)
	}
	return validateRelated("document", d.Related, DocumentRelatedKinds)
}

// InvoiceItem is one line of an invoice. Amount is caller-computed.
type InvoiceItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Rate        float64 `json:"rate"`
	Amount      float64 `json:"amount"`
}

// Invoice bills a contact. Subtotal, Tax and Total are caller-computed.
type Invoice struct {
	Base
	Number    string        `json:"number"`
	ContactID string        `json:"contactId"`
	ProjectID string        `json:"projectId,omitempty"`
	Status    InvoiceStatus `json:"status"`
	IssueDate *time.Time    `json:"issueDate,omitempty"`
	DueDate   *time.Time    `json:"dueDate,omitempty"`
	PaidDate  *time.Time    `json:"paidDate,omitempty"`
	Items     []InvoiceItem `json:"items,omitempty"`
	Notes     string        `json:"notes,omitempty"`
	Subtotal  float64       `json:"subtotal"`
	Tax       float64       `json:"tax"`
	Total     float64       `json:"total"`
}

func (i *Invoice) Validate() error {
	if err := required("invoice", "number", i.Number); err != nil {
		return err
	}
	if err := required("invoice", "contactId", i.ContactID); err != nil {
		return err
	}
	return oneOf("invoice", "status", i.Status,
		InvoiceDraft, InvoiceSent, InvoicePaid, InvoiceOverdue, InvoiceCancelled)
}

// TimeEntry records time spent. Duration is in minutes and is not derived
// from StartTime and EndTime.
type TimeEntry struct {
	Base
	Description string     `json:"description,omitempty"`
	ProjectID   string     `json:"projectId,omitempty"`
	TaskID      string     `json:"taskId,omitempty"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	Duration    float64    `json:"duration"`
	Billable    bool       `json:"billable"`
	InvoiceID   string     `json:"invoiceId,omitempty"`
}

func (te *TimeEntry) Validate() error {
	if err := requiredTime("timeEntry", "startTime", te.StartTime); err != nil {
		return err
	}
	if te.Duration < 0 {
		return errs.Invalid("timeEntry", "duration", "must not be negative, got %v", te.Duration)
	}
	return nil
}

// GoalMetric tracks progress towards a goal.
type GoalMetric struct {
	Name    string  `json:"name"`
	Target  float64 `json:"target"`
	Current float64 `json:"current"`
	Unit    string  `json:"unit,omitempty"`
}

// Goal is an objective spanning projects.
type Goal struct {
	Base
	Title             string       `json:"title"`
	Description       string       `json:"description,omitempty"`
	Status            GoalStatus   `json:"status"`
	StartDate         time.Time    `json:"startDate"`
	TargetDate        *time.Time   `json:"targetDate,omitempty"`
	CompletedDate     *time.Time   `json:"completedDate,omitempty"`
	Metrics           []GoalMetric `json:"metrics,omitempty"`
	RelatedProjectIDs []string     `json:"relatedProjectIds,omitempty"`
}

func (g *Goal) Validate() error {
	if err := required("goal", "title", g.Title); err != nil {
		return err
	}
	if err := oneOf("goal", "status", g.Status, GoalActive, GoalCompleted, GoalAbandoned); err != nil {
		return err
	}
	return requiredTime("goal", "startDate", g.StartDate)
}
