// Package session defines the session contract the dispatcher attaches to every call.
package session

import (
	"context"
	"fmt"
)

// Session is the authenticated context of a request.
type Session interface {
	// ClientCode is the tenant code; empty when the request is not bound to a tenant.
	ClientCode() string
	// UserID is the authenticated user, if any.
	UserID() string
}

// Factory builds a Session from the authentication data of a request.
type Factory interface {
	CreateSession(ctx context.Context, authenticationData map[string]any) (Session, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, authenticationData map[string]any) (Session, error)

// CreateSession calls f.
func (f FactoryFunc) CreateSession(ctx context.Context, authenticationData map[string]any) (Session, error) {
	return f(ctx, authenticationData)
}

// APISession is the default Session, read straight from authentication data.
type APISession struct {
	ClientID    string         `json:"clientId,omitempty"`
	Code        string         `json:"clientCode,omitempty"`
	User        string         `json:"userId,omitempty"`
	ProfileID   string         `json:"profileId,omitempty"`
	ServiceName string         `json:"serviceName,omitempty"`
	IsDev       bool           `json:"isDev,omitempty"`
	Permissions []string       `json:"permissions,omitempty"`
	Data        map[string]any `json:"-"`
}

// ClientCode returns the tenant code.
func (s *APISession) ClientCode() string { return s.Code }

// UserID returns the user id.
func (s *APISession) UserID() string { return s.User }

// DefaultFactory builds APISession values.
type DefaultFactory struct{}

// CreateSession builds an APISession. Unknown keys are kept in Data; known keys
// with the wrong type are rejected.
func (DefaultFactory) CreateSession(_ context.Context, authenticationData map[string]any) (Session, error) {
	s := &APISession{Data: authenticationData}
	var err error
	if s.ClientID, err = stringField(authenticationData, "clientId"); err != nil {
		return nil, err
	}
	if s.Code, err = stringField(authenticationData, "clientCode"); err != nil {
		return nil, err
	}
	if s.User, err = stringField(authenticationData, "userId"); err != nil {
		return nil, err
	}
	if s.ProfileID, err = stringField(authenticationData, "profileId"); err != nil {
		return nil, err
	}
	if s.ServiceName, err = stringField(authenticationData, "serviceName"); err != nil {
		return nil, err
	}
	if v, ok := authenticationData["isDev"]; ok && v != nil {
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("session: isDev must be a boolean")
		}
		s.IsDev = b
	}
	if v, ok := authenticationData["permissions"]; ok && v != nil {
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("session: permissions must be an array")
		}
		for _, p := range list {
			if str, ok := p.(string); ok {
				s.Permissions = append(s.Permissions, str)
			}
		}
	}
	return s, nil
}

func stringField(data map[string]any, key string) (string, error) {
	v, ok := data[key]
	if !ok || v == nil {
		return "", nil
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return fmt.Sprintf("%v", t), nil
	}
	return "", fmt.Errorf("session: %s must be a string", key)
}
