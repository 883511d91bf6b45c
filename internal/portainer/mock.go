package portainer

import (
	"context"
	"fmt"
	"sync"

	"github.com/appbridge/appbridge/internal/deploy"
)

// MockClient records deployments in memory. Used when no Portainer
// connection is configured, and by tests that exercise the deployment
// path end to end without a backend.
type MockClient struct {
	mu         sync.Mutex
	nextID     int
	stacks     map[int]Stack
	forcedErr  error
	deployed   int
	deleted    int
	validated  int
	lastDeploy *deploy.Payload
}

// NewMockClient returns an empty mock backend.
func NewMockClient() *MockClient {
	return &MockClient{nextID: 1, stacks: make(map[int]Stack)}
}

// ForceError makes every subsequent call fail with err until Reset or
// ForceError(nil).
func (m *MockClient) ForceError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forcedErr = err
}

// Reset drops all recorded stacks, counters and forced errors.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID = 1
	m.stacks = make(map[int]Stack)
	m.forcedErr = nil
	m.deployed = 0
	m.deleted = 0
	m.validated = 0
	m.lastDeploy = nil
}

// Stats reports call counts since the last Reset.
func (m *MockClient) Stats() (deployed, deleted, validated int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deployed, m.deleted, m.validated
}

// LastDeploy returns the most recent payload passed to DeployStack.
func (m *MockClient) LastDeploy() *deploy.Payload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastDeploy
}

func (m *MockClient) DeployStack(_ context.Context, payload *deploy.Payload) (*Stack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedErr != nil {
		return nil, m.forcedErr
	}
	for _, stack := range m.stacks {
		if stack.Name == payload.StackName {
			return nil, &APIError{
				StatusCode: 409,
				Message:    fmt.Sprintf("a stack named %s already exists", payload.StackName),
			}
		}
	}

	stack := Stack{
		ID:         m.nextID,
		Name:       payload.StackName,
		EndpointID: payload.EndpointID,
		Status:     1,
	}
	m.nextID++
	m.stacks[stack.ID] = stack
	m.deployed++
	m.lastDeploy = payload
	return &stack, nil
}

func (m *MockClient) ValidateConnection(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validated++
	return m.forcedErr
}

func (m *MockClient) ListStacks(_ context.Context) ([]Stack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedErr != nil {
		return nil, m.forcedErr
	}
	stacks := make([]Stack, 0, len(m.stacks))
	for id := 1; id < m.nextID; id++ {
		if stack, ok := m.stacks[id]; ok {
			stacks = append(stacks, stack)
		}
	}
	return stacks, nil
}

func (m *MockClient) DeleteStack(_ context.Context, stackID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedErr != nil {
		return m.forcedErr
	}
	if _, ok := m.stacks[stackID]; !ok {
		return &APIError{StatusCode: 404, Message: fmt.Sprintf("stack %d not found", stackID)}
	}
	delete(m.stacks, stackID)
	m.deleted++
	return nil
}
