package db

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Seed populates an empty database with a demo workspace: three users,
// one shared project with a starter task, and three AI agents. It is a
// no-op when any users already exist, so repeated startups are safe.
func (adb *AppDB) Seed() error {
	count, err := adb.CountUsers()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	type seedUser struct {
		username, email, password, role string
	}
	seedUsers := []seedUser{
		{"admin", "admin@example.com", "password", "admin"},
		{"designer", "designer@example.com", "design123", "designer"},
		{"developer", "dev@example.com", "dev123", "developer"},
	}

	users := make([]*User, 0, len(seedUsers))
	for _, su := range seedUsers {
		hash, err := bcrypt.GenerateFromPassword([]byte(su.password), 10)
		if err != nil {
			return fmt.Errorf("seed: hash password: %w", err)
		}
		u := &User{
			ID:           uuid.NewString(),
			Username:     su.username,
			Email:        su.email,
			PasswordHash: string(hash),
			Role:         su.role,
			IsActive:     true,
		}
		if err := adb.CreateUser(u); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		users = append(users, u)
	}
	admin, designer, developer := users[0], users[1], users[2]

	project := &Project{
		ID:          uuid.NewString(),
		Name:        "Portfolio Template",
		Description: "A modern portfolio template for creative professionals",
		OwnerID:     admin.ID,
		Settings:    map[string]any{"theme": "minimal", "layout": "grid", "aiEnabled": true},
	}
	if err := adb.CreateProject(project); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	for _, u := range []*User{designer, developer} {
		if err := adb.AddCollaborator(uuid.NewString(), project.ID, u.ID, "collaborator"); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	task := &Task{
		ID:          uuid.NewString(),
		ProjectID:   project.ID,
		Title:       "Build collaborative AI platforms like Figma meets Notion",
		Description: "Help me build collaborative AI platforms like Figma meets Notion with GitHub-style resource management",
		Status:      "in_progress",
		Priority:    "high",
		AssigneeID:  admin.ID,
		CreatedBy:   admin.ID,
		Tags:        []string{"ai", "collaboration", "platform"},
	}
	if err := adb.CreateTask(task); err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	agents := []*Agent{
		{
			ID:            uuid.NewString(),
			Name:          "Design Assistant",
			Type:          AgentTypeDesign,
			Description:   "Helps with UI/UX design and visual elements",
			Capabilities:  []string{"color_schemes", "layout_suggestions", "component_generation"},
			Configuration: map[string]any{"model": "gpt-4", "temperature": 0.7},
		},
		{
			ID:            uuid.NewString(),
			Name:          "Code Generator",
			Type:          AgentTypeDevelopment,
			Description:   "Generates code based on design specifications",
			Capabilities:  []string{"react_components", "styling", "api_integration"},
			Configuration: map[string]any{"model": "gpt-4", "temperature": 0.3},
		},
		{
			ID:            uuid.NewString(),
			Name:          "Content Writer",
			Type:          AgentTypeContent,
			Description:   "Creates and optimizes content for projects",
			Capabilities:  []string{"copywriting", "seo_optimization", "content_strategy"},
			Configuration: map[string]any{"model": "gpt-4", "temperature": 0.8},
		},
	}
	for _, a := range agents {
		if err := adb.SaveAgent(a); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	return nil
}
