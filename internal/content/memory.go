package content

import (
	"context"
	"sync"
	"time"

	"github.com/linkup-social/flowkit/workflows"
)

// Story is an in-memory story record.
type Story struct {
	ID       string
	AuthorID string
}

// Connection is an in-memory connection-request record.
type Connection struct {
	ID          string
	RequesterID string
	RecipientID string
	Status      string
}

// Message is an in-memory message record.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Seen           bool
	SentAt         time.Time
}

// InMemoryContentStore implements workflows.ContentStore in memory. It backs
// tests and the memory store mode of the daemon, where the workflows run for
// real but the application content is process-local.
type InMemoryContentStore struct {
	mu          sync.Mutex
	users       map[string]workflows.UserProfile
	stories     map[string]Story
	connections map[string]Connection
	messages    map[string]Message
}

var _ workflows.ContentStore = (*InMemoryContentStore)(nil)

func NewInMemoryContentStore() *InMemoryContentStore {
	return &InMemoryContentStore{
		users:       make(map[string]workflows.UserProfile),
		stories:     make(map[string]Story),
		connections: make(map[string]Connection),
		messages:    make(map[string]Message),
	}
}

// PutUser, PutStory, PutConnection and PutMessage seed state.

func (s *InMemoryContentStore) PutUser(u workflows.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *InMemoryContentStore) PutStory(st Story) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stories[st.ID] = st
}

func (s *InMemoryContentStore) PutConnection(c Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[c.ID] = c
}

func (s *InMemoryContentStore) PutMessage(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.ID] = m
}

func (s *InMemoryContentStore) StoryExists(ctx context.Context, storyID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.stories[storyID]
	return ok, nil
}

func (s *InMemoryContentStore) DeleteStory(ctx context.Context, storyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stories, storyID)
	return nil
}

func (s *InMemoryContentStore) ConnectionStatus(ctx context.Context, requestID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[requestID]
	if !ok {
		return "", workflows.ErrNotFound
	}
	return c.Status, nil
}

func (s *InMemoryContentStore) CountUnseenMessages(ctx context.Context, conversationID string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.ConversationID == conversationID && !m.Seen && !m.SentAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryContentStore) ApplyUserProfileChange(ctx context.Context, userID string, changes map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[userID]
	u.ID = userID
	if name, ok := changes["full_name"].(string); ok {
		u.FullName = name
	}
	if email, ok := changes["email"].(string); ok {
		u.Email = email
	}
	s.users[userID] = u
	return nil
}

func (s *InMemoryContentStore) CascadeDeleteUserContent(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, st := range s.stories {
		if st.AuthorID == userID {
			delete(s.stories, id)
		}
	}
	for id, m := range s.messages {
		if m.SenderID == userID {
			delete(s.messages, id)
		}
	}
	for id, c := range s.connections {
		if c.RequesterID == userID || c.RecipientID == userID {
			delete(s.connections, id)
		}
	}
	delete(s.users, userID)
	return nil
}

func (s *InMemoryContentStore) User(ctx context.Context, userID string) (*workflows.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, workflows.ErrNotFound
	}
	return &u, nil
}
