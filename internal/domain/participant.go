package domain

// Participant is a configured member of a room.
type Participant struct {
	Name           string `yaml:"name" json:"name"`
	PasswordHash   string `yaml:"password_hash" json:"-"`
	TelegramChatID string `yaml:"telegram_chat_id" json:"-"`
}

// Roster is the set of participants sharing one room.
type Roster struct {
	Room         string        `yaml:"room"`
	Participants []Participant `yaml:"participants"`
}

// Lookup returns the participant with the given name.
func (r *Roster) Lookup(name string) (Participant, bool) {
	for _, p := range r.Participants {
		if p.Name == name {
			return p, true
		}
	}
	return Participant{}, false
}

// Names returns every participant name in roster order.
func (r *Roster) Names() []string {
	names := make([]string, 0, len(r.Participants))
	for _, p := range r.Participants {
		names = append(names, p.Name)
	}
	return names
}
