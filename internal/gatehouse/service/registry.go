package service

import (
	"fmt"

	"github.com/quayside/gatehouse/internal/gatehouse/domain"
)

// Registry tracks the request↔user and user↔session associations for the
// lifetime of one in-flight request. Each side of each mapping admits at
// most one counterpart at a time.
//
// A Registry is created per request and discarded at request end; it is not
// safe for concurrent use and does not need to be. Violating an association
// invariant (double-associate, mismatched dissociate) is a bug in request
// lifecycle management, not bad input, so it panics rather than returning
// an error.
type Registry struct {
	requestUser map[*Request]*domain.User
	userRequest map[*domain.User]*Request
	userSession map[*domain.User]*Session
	sessionUser map[*Session]*domain.User
}

func NewRegistry() *Registry {
	return &Registry{
		requestUser: make(map[*Request]*domain.User, 1),
		userRequest: make(map[*domain.User]*Request, 1),
		userSession: make(map[*domain.User]*Session, 1),
		sessionUser: make(map[*Session]*domain.User, 1),
	}
}

// AssociateUser binds a user to a request. Panics if either side already
// has a counterpart.
func (g *Registry) AssociateUser(req *Request, user *domain.User) {
	if existing, ok := g.requestUser[req]; ok {
		panic(fmt.Sprintf("registry: request %s already associated with user %q", req.ID, existing.ID))
	}
	if existing, ok := g.userRequest[user]; ok {
		panic(fmt.Sprintf("registry: user %q already associated with request %s", user.ID, existing.ID))
	}
	g.requestUser[req] = user
	g.userRequest[user] = req
}

// DissociateUser removes the request↔user binding. Panics if the pair is
// not currently associated.
func (g *Registry) DissociateUser(req *Request, user *domain.User) {
	if g.requestUser[req] != user {
		panic(fmt.Sprintf("registry: request %s is not associated with user %q", req.ID, user.ID))
	}
	delete(g.requestUser, req)
	delete(g.userRequest, user)
}

// UserOf returns the user associated with the request, or nil.
func (g *Registry) UserOf(req *Request) *domain.User {
	return g.requestUser[req]
}

// RequestOf returns the request associated with the user, or nil.
func (g *Registry) RequestOf(user *domain.User) *Request {
	return g.userRequest[user]
}

// AssociateSession binds a session to a user. Panics if either side already
// has a counterpart.
func (g *Registry) AssociateSession(user *domain.User, sess *Session) {
	if _, ok := g.userSession[user]; ok {
		panic(fmt.Sprintf("registry: user %q already has an active session", user.ID))
	}
	if existing, ok := g.sessionUser[sess]; ok {
		panic(fmt.Sprintf("registry: session %s already belongs to user %q", sess.ID, existing.ID))
	}
	g.userSession[user] = sess
	g.sessionUser[sess] = user
}

// DissociateSession removes the user↔session binding. Panics if the pair is
// not currently associated.
func (g *Registry) DissociateSession(user *domain.User, sess *Session) {
	if g.userSession[user] != sess {
		panic(fmt.Sprintf("registry: session %s is not associated with user %q", sess.ID, user.ID))
	}
	delete(g.userSession, user)
	delete(g.sessionUser, sess)
}

// SessionOf returns the session associated with the user, or nil.
func (g *Registry) SessionOf(user *domain.User) *Session {
	return g.userSession[user]
}

// UserOfSession returns the user owning the session, or nil.
func (g *Registry) UserOfSession(sess *Session) *domain.User {
	return g.sessionUser[sess]
}

// Teardown dissolves every association at request end. Unlike the targeted
// dissociate operations this is unconditional: the request is over and the
// maps are about to be garbage anyway.
func (g *Registry) Teardown() {
	clear(g.requestUser)
	clear(g.userRequest)
	clear(g.userSession)
	clear(g.sessionUser)
}
