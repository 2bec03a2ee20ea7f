// Package testing provides helpers for testing code built on gimbal.
package testing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/gimbal"
)

// StubClient is an in-memory gimbal.Client holding an authoritative
// document. Failures and rejections can be injected per operation, and an
// ApplyHook can reproduce server-side side effects such as history
// appends or path normalization.
type StubClient struct {
	mu       sync.Mutex
	doc      gimbal.Document
	accounts []gimbal.Account

	// FailNext makes the next call to the named op return a transport
	// error. Op names: fetch, apply, accounts, switch, delete, login,
	// validate, addmirror, removemirror, history.
	failNext map[string]error

	// RejectNext makes the next call to the named op return an
	// unsuccessful outcome with the given message.
	rejectNext map[string]string

	calls map[string]int

	// ApplyHook runs on the merged document after a successful apply,
	// before it becomes authoritative.
	ApplyHook func(before, after *gimbal.Document)
}

// NewStubClient creates a stub seeded with the given document.
func NewStubClient(doc gimbal.Document) *StubClient {
	return &StubClient{
		doc:        doc,
		accounts:   append([]gimbal.Account(nil), doc.Accounts...),
		failNext:   make(map[string]error),
		rejectNext: make(map[string]string),
		calls:      make(map[string]int),
	}
}

// FailNext injects a transport error for the next call to op.
func (s *StubClient) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		err = errors.New("injected failure")
	}
	s.failNext[op] = err
}

// RejectNext injects a business rejection for the next call to op.
func (s *StubClient) RejectNext(op, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectNext[op] = message
}

// Calls returns how many times op has been invoked.
func (s *StubClient) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Document returns a copy of the authoritative document.
func (s *StubClient) Document() gimbal.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// SetDocument replaces the authoritative document.
func (s *StubClient) SetDocument(doc gimbal.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
	s.accounts = append([]gimbal.Account(nil), doc.Accounts...)
}

// begin records the call and pops any injected failure or rejection.
// Callers must hold s.mu.
func (s *StubClient) begin(op string) (error, string, bool) {
	s.calls[op]++
	if err, ok := s.failNext[op]; ok {
		delete(s.failNext, op)
		return err, "", false
	}
	if msg, ok := s.rejectNext[op]; ok {
		delete(s.rejectNext, op)
		return nil, msg, true
	}
	return nil, "", false
}

func (s *StubClient) FetchSettings(ctx context.Context) (gimbal.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, _, _ := s.begin("fetch"); err != nil {
		return gimbal.Document{}, err
	}
	return s.doc.Clone(), nil
}

func (s *StubClient) ApplySettings(ctx context.Context, patch gimbal.Patch) (gimbal.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, msg, rejected := s.begin("apply"); err != nil {
		return gimbal.Outcome{}, err
	} else if rejected {
		return gimbal.Outcome{Success: false, Message: msg}, nil
	}

	merged, err := s.doc.Merge(patch)
	if err != nil {
		return gimbal.Outcome{Success: false, Message: err.Error()}, nil
	}
	if s.ApplyHook != nil {
		before := s.doc.Clone()
		s.ApplyHook(&before, &merged)
	}
	s.doc = merged
	return gimbal.Outcome{Success: true, Message: "Settings updated"}, nil
}

func (s *StubClient) FetchAccounts(ctx context.Context) ([]gimbal.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, _, _ := s.begin("accounts"); err != nil {
		return nil, err
	}
	return append([]gimbal.Account(nil), s.accounts...), nil
}

func (s *StubClient) SwitchAccount(ctx context.Context, username string) (gimbal.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, msg, rejected := s.begin("switch"); err != nil {
		return gimbal.Outcome{}, err
	} else if rejected {
		return gimbal.Outcome{Success: false, Message: msg}, nil
	}
	for _, a := range s.accounts {
		if a.Username == username {
			s.doc.ActiveUsername = username
			return gimbal.Outcome{Success: true, Message: "Switched to " + username}, nil
		}
	}
	return gimbal.Outcome{Success: false, Message: "Account not found"}, nil
}

func (s *StubClient) DeleteAccount(ctx context.Context, username string) (gimbal.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, msg, rejected := s.begin("delete"); err != nil {
		return gimbal.Outcome{}, err
	} else if rejected {
		return gimbal.Outcome{Success: false, Message: msg}, nil
	}
	kept := s.accounts[:0:0]
	found := false
	for _, a := range s.accounts {
		if a.Username == username {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	if !found {
		return gimbal.Outcome{Success: false, Message: "Account not found"}, nil
	}
	s.accounts = kept
	s.doc.Accounts = append([]gimbal.Account(nil), kept...)
	if s.doc.ActiveUsername == username {
		s.doc.ActiveUsername = ""
	}
	return gimbal.Outcome{Success: true, Message: "Account removed"}, nil
}

func (s *StubClient) Login(ctx context.Context, token string) (gimbal.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, msg, rejected := s.begin("login"); err != nil {
		return gimbal.Outcome{}, err
	} else if rejected {
		return gimbal.Outcome{Success: false, Message: msg}, nil
	}
	account := gimbal.Account{Username: "user-" + token}
	s.accounts = append(s.accounts, account)
	s.doc.Accounts = append([]gimbal.Account(nil), s.accounts...)
	s.doc.ActiveUsername = account.Username
	return gimbal.Outcome{Success: true, Message: "Logged in as " + account.Username}, nil
}

func (s *StubClient) ValidateToken(ctx context.Context, token string) (gimbal.TokenInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, msg, rejected := s.begin("validate"); err != nil {
		return gimbal.TokenInfo{}, err
	} else if rejected {
		return gimbal.TokenInfo{Valid: false, Message: msg}, nil
	}
	return gimbal.TokenInfo{Valid: true, Username: "user-" + token}, nil
}

func (s *StubClient) AddMirror(ctx context.Context, req gimbal.MirrorRequest) (gimbal.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, msg, rejected := s.begin("addmirror"); err != nil {
		return gimbal.Outcome{}, err
	} else if rejected {
		return gimbal.Outcome{Success: false, Message: msg}, nil
	}
	req = req.Normalized()
	s.doc.Mirrors = append(s.doc.Mirrors, gimbal.Mirror{
		Key:    gimbal.CustomMirrorPrefix + "stub",
		Name:   req.Name,
		URL:    req.URL,
		Region: "custom",
	})
	return gimbal.Outcome{Success: true, Message: "Mirror added"}, nil
}

func (s *StubClient) RemoveMirror(ctx context.Context, key string) (gimbal.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, msg, rejected := s.begin("removemirror"); err != nil {
		return gimbal.Outcome{}, err
	} else if rejected {
		return gimbal.Outcome{Success: false, Message: msg}, nil
	}
	kept := s.doc.Mirrors[:0:0]
	found := false
	for _, m := range s.doc.Mirrors {
		if m.Key == key && m.Removable() {
			found = true
			continue
		}
		kept = append(kept, m)
	}
	if !found {
		return gimbal.Outcome{Success: false, Message: "Cannot remove built-in mirrors"}, nil
	}
	s.doc.Mirrors = kept
	return gimbal.Outcome{Success: true, Message: "Mirror removed"}, nil
}

func (s *StubClient) DeleteHistory(ctx context.Context, kind gimbal.HistoryKind, path string) (gimbal.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, msg, rejected := s.begin("history"); err != nil {
		return gimbal.Outcome{}, err
	} else if rejected {
		return gimbal.Outcome{Success: false, Message: msg}, nil
	}
	var list *[]string
	switch kind {
	case gimbal.HistoryCache:
		list = &s.doc.HFCacheHistory
	default:
		list = &s.doc.DownloadDirHistory
	}
	kept := (*list)[:0:0]
	for _, p := range *list {
		if p != path {
			kept = append(kept, p)
		}
	}
	*list = kept
	return gimbal.Outcome{Success: true, Message: "History item removed"}, nil
}

// WaitFor polls a condition until it returns true or timeout is reached.
// Returns true if the condition was met, false on timeout.
func WaitFor(t *testing.T, timeout time.Duration, condition func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return condition()
}

// WaitForState waits until the store reaches the expected state or timeout
// occurs.
func WaitForState(t *testing.T, store *gimbal.Store, expected gimbal.State, timeout time.Duration) bool {
	t.Helper()
	return WaitFor(t, timeout, func() bool {
		return store.State() == expected
	})
}

var _ gimbal.Client = (*StubClient)(nil)
