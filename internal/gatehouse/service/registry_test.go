package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quayside/gatehouse/internal/gatehouse/domain"
)

func TestRegistryUserAssociations(t *testing.T) {
	t.Parallel()

	t.Run("associate and look up both directions", func(t *testing.T) {
		reg := NewRegistry()
		req := &Request{}
		user := &domain.User{ID: "42", Role: "member"}

		reg.AssociateUser(req, user)
		require.Same(t, user, reg.UserOf(req))
		require.Same(t, req, reg.RequestOf(user))
	})

	t.Run("unassociated lookups return nil", func(t *testing.T) {
		reg := NewRegistry()
		require.Nil(t, reg.UserOf(&Request{}))
		require.Nil(t, reg.RequestOf(&domain.User{}))
	})

	t.Run("double associate panics", func(t *testing.T) {
		reg := NewRegistry()
		req := &Request{}
		user := &domain.User{ID: "42"}

		reg.AssociateUser(req, user)
		require.Panics(t, func() { reg.AssociateUser(req, &domain.User{ID: "7"}) })
		require.Panics(t, func() { reg.AssociateUser(&Request{}, user) })
	})

	t.Run("mismatched dissociate panics", func(t *testing.T) {
		reg := NewRegistry()
		req := &Request{}
		user := &domain.User{ID: "42"}

		require.Panics(t, func() { reg.DissociateUser(req, user) })

		reg.AssociateUser(req, user)
		require.Panics(t, func() { reg.DissociateUser(req, &domain.User{ID: "7"}) })
	})

	t.Run("reassociate after dissociate", func(t *testing.T) {
		reg := NewRegistry()
		req := &Request{}
		anonymous := &domain.User{}
		user := &domain.User{ID: "42"}

		// The login handoff: the request sheds its anonymous identity and
		// picks up the authenticated one.
		reg.AssociateUser(req, anonymous)
		reg.DissociateUser(req, anonymous)
		reg.AssociateUser(req, user)

		require.Same(t, user, reg.UserOf(req))
		require.Nil(t, reg.RequestOf(anonymous))
	})
}

func TestRegistrySessionAssociations(t *testing.T) {
	t.Parallel()

	t.Run("associate and look up both directions", func(t *testing.T) {
		reg := NewRegistry()
		user := &domain.User{ID: "42"}
		sess := &Session{}

		reg.AssociateSession(user, sess)
		require.Same(t, sess, reg.SessionOf(user))
		require.Same(t, user, reg.UserOfSession(sess))
	})

	t.Run("second session for one user panics", func(t *testing.T) {
		reg := NewRegistry()
		user := &domain.User{ID: "42"}

		reg.AssociateSession(user, &Session{})
		require.Panics(t, func() { reg.AssociateSession(user, &Session{}) })
	})

	t.Run("one session for two users panics", func(t *testing.T) {
		reg := NewRegistry()
		sess := &Session{}

		reg.AssociateSession(&domain.User{ID: "1"}, sess)
		require.Panics(t, func() { reg.AssociateSession(&domain.User{ID: "2"}, sess) })
	})

	t.Run("mismatched dissociate panics", func(t *testing.T) {
		reg := NewRegistry()
		user := &domain.User{ID: "42"}
		sess := &Session{}

		require.Panics(t, func() { reg.DissociateSession(user, sess) })

		reg.AssociateSession(user, sess)
		require.Panics(t, func() { reg.DissociateSession(user, &Session{}) })
	})
}

func TestRegistryTeardown(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	req := &Request{}
	user := &domain.User{ID: "42"}
	sess := &Session{}

	reg.AssociateUser(req, user)
	reg.AssociateSession(user, sess)

	reg.Teardown()

	require.Nil(t, reg.UserOf(req))
	require.Nil(t, reg.RequestOf(user))
	require.Nil(t, reg.SessionOf(user))
	require.Nil(t, reg.UserOfSession(sess))

	// The registry is reusable afterwards, though in practice a fresh one
	// is built per request.
	reg.AssociateUser(req, user)
	require.Same(t, user, reg.UserOf(req))
}
