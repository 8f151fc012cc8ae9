// Package cache holds the in-process caches fed by the relay: vote
// timestamps, in-flight proposals, and family tree membership.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/puzpuzpuz/xsync/v3"
)

// VoteTimestampLayout matches the ISO-8601 microsecond timestamps vote
// publishers emit.
const VoteTimestampLayout = "2006-01-02T15:04:05.999999"

const (
	// DefaultVoteCacheSize bounds the vote LRU
	DefaultVoteCacheSize = 4096
	// DefaultVoteTTL is how long a vote counts for
	DefaultVoteTTL = 12 * time.Hour
)

// Proposal roles
const (
	RoleInstigator = "INSTIGATOR"
	RoleTarget     = "TARGET"
)

// VoteCache remembers when a user last voted. Entries expire on their own;
// the relay only ever inserts.
type VoteCache struct {
	lru *expirable.LRU[uint64, time.Time]
}

// NewVoteCache creates a vote cache with the given capacity and entry TTL
func NewVoteCache(size int, ttl time.Duration) *VoteCache {
	return &VoteCache{
		lru: expirable.NewLRU[uint64, time.Time](size, nil, ttl),
	}
}

// Set records the time a user voted
func (c *VoteCache) Set(userID uint64, votedAt time.Time) {
	c.lru.Add(userID, votedAt)
}

// Get returns the time of a user's last unexpired vote
func (c *VoteCache) Get(userID uint64) (time.Time, bool) {
	return c.lru.Get(userID)
}

// Len returns the number of unexpired entries
func (c *VoteCache) Len() int {
	return c.lru.Len()
}

// ProposalCache marks users with an in-flight proposal so concurrent
// proposals involving them can be refused. Written by relay handlers,
// read by the hosting application's command layer.
type ProposalCache struct {
	roles *xsync.MapOf[uint64, string]
}

// NewProposalCache creates an empty proposal cache
func NewProposalCache() *ProposalCache {
	return &ProposalCache{
		roles: xsync.NewMapOf[uint64, string](),
	}
}

// Add marks both parties of a new proposal
func (c *ProposalCache) Add(instigatorID, targetID uint64) {
	c.roles.Store(instigatorID, RoleInstigator)
	c.roles.Store(targetID, RoleTarget)
}

// Remove clears the listed users from the cache
func (c *ProposalCache) Remove(userIDs ...uint64) {
	for _, id := range userIDs {
		c.roles.Delete(id)
	}
}

// Role returns the proposal role of a user, if any
func (c *ProposalCache) Role(userID uint64) (string, bool) {
	return c.roles.Load(userID)
}

// Len returns the number of users with an in-flight proposal
func (c *ProposalCache) Len() int {
	return c.roles.Size()
}

// TreeMember is one node of the family tree
type TreeMember struct {
	ID       uint64
	Partner  uint64
	Parent   uint64
	Children []uint64
}

// TreeCache holds family tree membership, keyed by user ID
type TreeCache struct {
	members *xsync.MapOf[uint64, *TreeMember]
}

// NewTreeCache creates an empty tree cache
func NewTreeCache() *TreeCache {
	return &TreeCache{
		members: xsync.NewMapOf[uint64, *TreeMember](),
	}
}

// Upsert inserts or replaces a member record
func (c *TreeCache) Upsert(member *TreeMember) {
	c.members.Store(member.ID, member)
}

// Get returns the member record for a user
func (c *TreeCache) Get(userID uint64) (*TreeMember, bool) {
	return c.members.Load(userID)
}

// Len returns the number of known members
func (c *TreeCache) Len() int {
	return c.members.Size()
}
