package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDFromContent(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		id1 := IDFromContent("slack\x00C042-msg-881")
		id2 := IDFromContent("slack\x00C042-msg-881")
		assert.Equal(t, id1, id2)
	})

	t.Run("distinct content produces distinct ids", func(t *testing.T) {
		id1 := IDFromContent("slack\x00C042-msg-881")
		id2 := IDFromContent("gdrive\x00C042-msg-881")
		assert.NotEqual(t, id1, id2)
	})
}

func TestDocumentKeyID(t *testing.T) {
	key := DocumentKey{Source: "gdrive", ExternalID: "file-17"}

	t.Run("stable across calls", func(t *testing.T) {
		assert.Equal(t, key.ID(), key.ID())
	})

	t.Run("source is part of the identity", func(t *testing.T) {
		other := DocumentKey{Source: "slack", ExternalID: "file-17"}
		assert.NotEqual(t, key.ID(), other.ID())
	})

	t.Run("separator prevents ambiguous concatenation", func(t *testing.T) {
		a := DocumentKey{Source: "ab", ExternalID: "c"}
		b := DocumentKey{Source: "a", ExternalID: "bc"}
		assert.NotEqual(t, a.ID(), b.ID())
	})
}

func TestACLAuthorizes(t *testing.T) {
	alice := Identity{Provider: "slack", ExternalID: "U-alice"}
	bob := Identity{Provider: "slack", ExternalID: "U-bob"}

	t.Run("public document is visible to anyone", func(t *testing.T) {
		acl := ACL{Public: true}
		assert.True(t, acl.Authorizes(nil))
		assert.True(t, acl.Authorizes([]Identity{bob}))
	})

	t.Run("allow list match", func(t *testing.T) {
		acl := ACL{Allow: []Identity{alice}}
		assert.True(t, acl.Authorizes([]Identity{alice}))
		assert.True(t, acl.Authorizes([]Identity{bob, alice}))
	})

	t.Run("default deny", func(t *testing.T) {
		acl := ACL{Allow: []Identity{alice}}
		assert.False(t, acl.Authorizes([]Identity{bob}))
		assert.False(t, acl.Authorizes(nil))
	})

	t.Run("provider is part of the identity", func(t *testing.T) {
		acl := ACL{Allow: []Identity{alice}}
		driveAlice := Identity{Provider: "gdrive", ExternalID: "U-alice"}
		assert.False(t, acl.Authorizes([]Identity{driveAlice}))
	})
}
