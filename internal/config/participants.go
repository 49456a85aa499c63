package config

import (
	"bytes"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"secure-relay/internal/domain"
)

const DefaultRoom = "secure_channel"

// LoadParticipants reads the YAML roster at path.
func LoadParticipants(path string) (*domain.Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read participants file: %w", err)
	}
	return ParseParticipants(data)
}

// ParseParticipants decodes and validates a roster document. Unknown fields
// are rejected so typos in the file fail loudly.
func ParseParticipants(data []byte) (*domain.Roster, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var roster domain.Roster
	if err := dec.Decode(&roster); err != nil {
		return nil, fmt.Errorf("failed to parse participants: %w", err)
	}
	if roster.Room == "" {
		roster.Room = DefaultRoom
	}

	if len(roster.Participants) == 0 {
		return nil, fmt.Errorf("participants file lists no participants")
	}

	seen := make(map[string]struct{}, len(roster.Participants))
	for i, p := range roster.Participants {
		if p.Name == "" {
			return nil, fmt.Errorf("participant %d has no name", i)
		}
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("participant %q is listed twice", p.Name)
		}
		seen[p.Name] = struct{}{}

		if _, err := bcrypt.Cost([]byte(p.PasswordHash)); err != nil {
			return nil, fmt.Errorf("participant %q: password_hash is not a bcrypt hash: %w", p.Name, err)
		}
	}

	return &roster, nil
}

// TelegramChats maps participant names to their configured chat ids.
func TelegramChats(roster *domain.Roster) map[string]string {
	chats := make(map[string]string)
	for _, p := range roster.Participants {
		if p.TelegramChatID != "" {
			chats[p.Name] = p.TelegramChatID
		}
	}
	return chats
}
