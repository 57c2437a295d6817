// Package seed fills an empty database with demonstration records.
package seed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/crm/internal/crm"
	"github.com/roach88/crm/internal/model"
)

// Options configures Run.
type Options struct {
	// Now anchors every sample date. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Result reports what Run stored.
type Result struct {
	Skipped  bool `json:"skipped"`
	Contacts int  `json:"contacts"`
	Projects int  `json:"projects"`
	Tasks    int  `json:"tasks"`
	Events   int  `json:"events"`
}

// Run adds the sample contacts, projects, tasks and events unless the
// database already holds contacts. Dates are relative to opts.Now.
func Run(ctx context.Context, db *crm.DB, opts Options) (Result, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	log := opts.Logger

	n, err := db.Contacts.Count(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("seed: count contacts: %w", err)
	}
	if n > 0 {
		log.Info("database already contains data, skipping sample data", "contacts", n)
		return Result{Skipped: true}, nil
	}

	now := opts.Now()
	s := sampler{now: now, today: startOfDay(now)}

	contacts := s.contacts()
	contactIDs, err := db.Contacts.BulkAdd(ctx, contacts)
	if err != nil {
		return Result{}, fmt.Errorf("seed: contacts: %w", err)
	}

	projects := s.projects(contactIDs)
	projectIDs, err := db.Projects.BulkAdd(ctx, projects)
	if err != nil {
		return Result{}, fmt.Errorf("seed: projects: %w", err)
	}

	tasks := s.tasks(projectIDs, contactIDs)
	if _, err := db.Tasks.BulkAdd(ctx, tasks); err != nil {
		return Result{}, fmt.Errorf("seed: tasks: %w", err)
	}

	events := s.events(projectIDs, contactIDs)
	if _, err := db.Events.BulkAdd(ctx, events); err != nil {
		return Result{}, fmt.Errorf("seed: events: %w", err)
	}

	res := Result{
		Contacts: len(contacts),
		Projects: len(projects),
		Tasks:    len(tasks),
		Events:   len(events),
	}
	log.Info("sample data generated",
		"contacts", res.Contacts,
		"projects", res.Projects,
		"tasks", res.Tasks,
		"events", res.Events)
	return res, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

type sampler struct {
	now   time.Time
	today time.Time
}

func (s sampler) base() model.Base {
	return model.Base{CreatedAt: s.now, UpdatedAt: s.now}
}

// days returns now shifted by n days.
func (s sampler) days(n int) *time.Time {
	t := s.now.AddDate(0, 0, n)
	return &t
}

// at returns today+n days at hh:mm.
func (s sampler) at(n, hh, mm int) time.Time {
	return s.today.AddDate(0, 0, n).Add(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute)
}

func (s sampler) contacts() []*model.Contact {
	return []*model.Contact{
		{
			Base:     s.base(),
			Name:     "John Doe",
			Email:    "john.doe@example.com",
			Phone:    "(555) 123-4567",
			Company:  "Acme Corporation",
			Title:    "Marketing Director",
			Notes:    "Met at Tech Conference 2023. Interested in our marketing solutions.",
			Tags:     []string{"client", "marketing"},
			Favorite: true,
		},
		{
			Base:     s.base(),
			Name:     "Jane Smith",
			Email:    "jane.smith@example.com",
			Phone:    "(555) 987-6543",
			Company:  "Globex Inc.",
			Title:    "CEO",
			Notes:    "Key decision maker. Prefers email communication.",
			Tags:     []string{"client", "decision-maker"},
			Favorite: true,
		},
		{
			Base:    s.base(),
			Name:    "Michael Johnson",
			Email:   "michael.johnson@example.com",
			Phone:   "(555) 789-0123",
			Company: "Tech Innovators",
			Title:   "Lead Developer",
			Notes:   "Technical contact for the website redesign project.",
			Tags:    []string{"vendor", "technical"},
		},
		{
			Base:    s.base(),
			Name:    "Sarah Williams",
			Email:   "sarah.williams@example.com",
			Phone:   "(555) 234-5678",
			Company: "Creative Solutions",
			Title:   "Graphic Designer",
			Notes:   "Works on all our design projects. Very skilled with branding.",
			Tags:    []string{"vendor", "design"},
		},
		{
			Base:     s.base(),
			Name:     "Robert Brown",
			Email:    "robert.brown@example.com",
			Phone:    "(555) 345-6789",
			Company:  "Acme Corporation",
			Title:    "CTO",
			Notes:    "Technical decision maker at Acme. Interested in our software solutions.",
			Tags:     []string{"client", "technical", "decision-maker"},
			Favorite: true,
		},
	}
}

func (s sampler) projects(contactIDs []string) []*model.Project {
	inAMonth := s.now.AddDate(0, 1, 0)
	return []*model.Project{
		{
			Base:        s.base(),
			Name:        "Website Redesign",
			Description: "Redesign and rebuild company website with modern technologies.",
			Status:      model.ProjectInProgress,
			StartDate:   s.days(-30),
			DueDate:     &inAMonth,
			ContactIDs:  []string{contactIDs[0], contactIDs[2]},
			Notes:       "Focus on mobile-first design and improved user experience.",
			Color:       "#0A84FF",
		},
		{
			Base:        s.base(),
			Name:        "Marketing Campaign",
			Description: "Q3 marketing campaign for new product launch.",
			Status:      model.ProjectPlanning,
			StartDate:   s.days(0),
			DueDate:     &inAMonth,
			ContactIDs:  []string{contactIDs[0], contactIDs[1]},
			Notes:       "Budget approved. Need to finalize creative assets.",
			Color:       "#FF9F0A",
		},
		{
			Base:        s.base(),
			Name:        "Client Onboarding",
			Description: "Onboarding process for new client Globex Inc.",
			Status:      model.ProjectInProgress,
			StartDate:   s.days(-5),
			DueDate:     s.days(7),
			ContactIDs:  []string{contactIDs[1]},
			Notes:       "Need to schedule kickoff meeting and gather requirements.",
			Color:       "#30D158",
		},
	}
}

func (s sampler) tasks(projectIDs, contactIDs []string) []*model.Task {
	return []*model.Task{
		{
			Base:          s.base(),
			Title:         "Create wireframes for website redesign",
			Description:   "Design initial wireframes for the homepage and product pages.",
			Status:        model.TaskCompleted,
			Priority:      model.PriorityHigh,
			DueDate:       s.days(-5),
			CompletedDate: s.days(-3),
			ProjectID:     projectIDs[0],
			ContactIDs:    []string{contactIDs[3]},
		},
		{
			Base:        s.base(),
			Title:       "Develop homepage prototype",
			Description: "Create working prototype of the new homepage based on approved wireframes.",
			Status:      model.TaskInProgress,
			Priority:    model.PriorityHigh,
			DueDate:     s.days(1),
			ProjectID:   projectIDs[0],
			ContactIDs:  []string{contactIDs[2]},
		},
		{
			Base:        s.base(),
			Title:       "Content audit of existing site",
			Description: "Review all content on current website and identify what needs to be updated.",
			Status:      model.TaskTodo,
			Priority:    model.PriorityMedium,
			DueDate:     s.days(7),
			ProjectID:   projectIDs[0],
		},
		{
			Base:        s.base(),
			Title:       "Create marketing campaign brief",
			Description: "Draft brief for the Q3 marketing campaign including goals, target audience, and channels.",
			Status:      model.TaskTodo,
			Priority:    model.PriorityHigh,
			DueDate:     s.days(1),
			ProjectID:   projectIDs[1],
			ContactIDs:  []string{contactIDs[0]},
		},
		{
			Base:        s.base(),
			Title:       "Kickoff meeting with Globex team",
			Description: "Initial kickoff meeting to discuss project scope, timeline, and deliverables.",
			Status:      model.TaskTodo,
			Priority:    model.PriorityHigh,
			DueDate:     s.days(1),
			ProjectID:   projectIDs[2],
			ContactIDs:  []string{contactIDs[1]},
		},
		{
			Base:        s.base(),
			Title:       "Prepare client onboarding documents",
			Description: "Gather and prepare all necessary onboarding documents for Globex Inc.",
			Status:      model.TaskInProgress,
			Priority:    model.PriorityMedium,
			DueDate:     s.days(2),
			ProjectID:   projectIDs[2],
		},
	}
}

func (s sampler) events(projectIDs, contactIDs []string) []*model.Event {
	return []*model.Event{
		{
			Base:        s.base(),
			Title:       "Website Redesign Status Meeting",
			Description: "Weekly status meeting to discuss progress on the website redesign project.",
			StartDate:   s.at(1, 10, 0),
			EndDate:     s.at(1, 11, 0),
			Location:    "Zoom",
			Color:       "#0A84FF",
			ProjectID:   projectIDs[0],
			ContactIDs:  []string{contactIDs[0], contactIDs[2]},
		},
		{
			Base:        s.base(),
			Title:       "Marketing Campaign Planning",
			Description: "Initial planning session for the Q3 marketing campaign.",
			StartDate:   s.at(2, 14, 0),
			EndDate:     s.at(2, 15, 30),
			Location:    "Conference Room A",
			Color:       "#FF9F0A",
			ProjectID:   projectIDs[1],
			ContactIDs:  []string{contactIDs[0]},
		},
		{
			Base:        s.base(),
			Title:       "Globex Inc. Kickoff Meeting",
			Description: "Initial kickoff meeting with Globex team to discuss project scope and timeline.",
			StartDate:   s.at(7, 9, 0),
			EndDate:     s.at(7, 10, 0),
			Location:    "Client Office",
			Color:       "#30D158",
			ProjectID:   projectIDs[2],
			ContactIDs:  []string{contactIDs[1]},
		},
	}
}
