package ws

import "testing"

func TestRegistryBindAndMembers(t *testing.T) {
	r := NewRegistry(NewConnManager())
	c := &Client{id: "c1"}

	r.Bind("u1", c)

	if n := r.MemberCount("u1"); n != 1 {
		t.Fatalf("expected 1 member, got %d", n)
	}
	members := r.Members("u1")
	if len(members) != 1 || members[0] != c {
		t.Fatalf("expected members to contain c1")
	}
}

func TestRegistryBindIdempotent(t *testing.T) {
	r := NewRegistry(NewConnManager())
	c := &Client{id: "c1"}

	r.Bind("u1", c)
	prev, _ := r.Bind("u1", c)

	if prev != "" {
		t.Errorf("expected no previous identity on rebind, got %q", prev)
	}
	if n := r.MemberCount("u1"); n != 1 {
		t.Fatalf("expected exactly 1 entry after duplicate bind, got %d", n)
	}
}

func TestRegistryBindIsTransactional(t *testing.T) {
	r := NewRegistry(NewConnManager())
	c := &Client{id: "c1"}

	r.Bind("u1", c)
	prev, remaining := r.Bind("u2", c)

	if prev != "u1" || remaining != 0 {
		t.Errorf("expected previous binding (u1, 0), got (%s, %d)", prev, remaining)
	}
	if n := r.MemberCount("u1"); n != 0 {
		t.Errorf("expected no stale membership under u1, got %d", n)
	}
	if n := r.MemberCount("u2"); n != 1 {
		t.Errorf("expected 1 member under u2, got %d", n)
	}
}

func TestRegistryRebindReportsRemainingSessions(t *testing.T) {
	r := NewRegistry(NewConnManager())
	c1 := &Client{id: "c1"}
	c2 := &Client{id: "c2"}

	r.Bind("u1", c1)
	r.Bind("u1", c2)

	prev, remaining := r.Bind("u2", c1)
	if prev != "u1" || remaining != 1 {
		t.Errorf("expected (u1, 1), got (%s, %d)", prev, remaining)
	}
}

func TestRegistryUnbind(t *testing.T) {
	r := NewRegistry(NewConnManager())
	c1 := &Client{id: "c1"}
	c2 := &Client{id: "c2"}

	r.Bind("u1", c1)
	r.Bind("u1", c2)

	identity, remaining := r.Unbind(c1)
	if identity != "u1" || remaining != 1 {
		t.Errorf("expected (u1, 1), got (%s, %d)", identity, remaining)
	}

	identity, remaining = r.Unbind(c2)
	if identity != "u1" || remaining != 0 {
		t.Errorf("expected (u1, 0), got (%s, %d)", identity, remaining)
	}

	if n := r.MemberCount("u1"); n != 0 {
		t.Errorf("expected empty room after unbinds, got %d", n)
	}
}

func TestRegistryUnbindUnboundIsNoop(t *testing.T) {
	r := NewRegistry(NewConnManager())
	c := &Client{id: "c1"}

	identity, remaining := r.Unbind(c)
	if identity != "" || remaining != 0 {
		t.Errorf("expected no-op unbind, got (%s, %d)", identity, remaining)
	}

	// Unbinding twice is also fine.
	r.Bind("u1", c)
	r.Unbind(c)
	identity, _ = r.Unbind(c)
	if identity != "" {
		t.Errorf("expected second unbind to be a no-op, got %s", identity)
	}
}

func TestRegistryMembersEmptyRoom(t *testing.T) {
	r := NewRegistry(NewConnManager())

	members := r.Members("nobody")
	if len(members) != 0 {
		t.Fatalf("expected empty member set, got %d", len(members))
	}
}
