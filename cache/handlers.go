package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/TheShubhendra/marriagebot/relay"
)

// Channel names the cache handlers are registered under
const (
	ChannelDBLVote             = "DBLVote"
	ChannelProposalCacheAdd    = "ProposalCacheAdd"
	ChannelProposalCacheRemove = "ProposalCacheRemove"
	ChannelTreeMemberUpdate    = "TreeMemberUpdate"
)

// RegisterHandlers binds the standard cache handlers to their channels
func RegisterHandlers(dispatch *relay.Dispatch, votes *VoteCache, proposals *ProposalCache, tree *TreeCache) {
	dispatch.Register(ChannelDBLVote, &VoteHandler{Votes: votes})
	dispatch.Register(ChannelProposalCacheAdd, &ProposalAddHandler{Proposals: proposals})
	dispatch.Register(ChannelProposalCacheRemove, &ProposalRemoveHandler{Proposals: proposals})
	dispatch.Register(ChannelTreeMemberUpdate, &TreeMemberHandler{Tree: tree})
}

// VoteHandler applies DBLVote payloads to the vote cache it holds
type VoteHandler struct {
	Votes *VoteCache
}

func (h *VoteHandler) Handle(ctx context.Context, payload relay.Payload) error {
	userID, err := payloadUint64(payload, "user_id")
	if err != nil {
		return err
	}

	raw, err := payloadString(payload, "datetime")
	if err != nil {
		return err
	}
	votedAt, err := time.Parse(VoteTimestampLayout, raw)
	if err != nil {
		return fmt.Errorf("invalid vote timestamp %q: %w", raw, err)
	}

	h.Votes.Set(userID, votedAt)
	return nil
}

// ProposalAddHandler applies ProposalCacheAdd payloads to the proposal cache
type ProposalAddHandler struct {
	Proposals *ProposalCache
}

func (h *ProposalAddHandler) Handle(ctx context.Context, payload relay.Payload) error {
	instigatorID, err := payloadUint64(payload, "instigator")
	if err != nil {
		return err
	}
	targetID, err := payloadUint64(payload, "target")
	if err != nil {
		return err
	}

	h.Proposals.Add(instigatorID, targetID)
	return nil
}

// ProposalRemoveHandler applies ProposalCacheRemove payloads to the proposal
// cache
type ProposalRemoveHandler struct {
	Proposals *ProposalCache
}

func (h *ProposalRemoveHandler) Handle(ctx context.Context, payload relay.Payload) error {
	userIDs, err := payloadUint64Slice(payload, "users")
	if err != nil {
		return err
	}

	h.Proposals.Remove(userIDs...)
	return nil
}

// TreeMemberHandler applies TreeMemberUpdate payloads to the tree cache
type TreeMemberHandler struct {
	Tree *TreeCache
}

func (h *TreeMemberHandler) Handle(ctx context.Context, payload relay.Payload) error {
	id, err := payloadUint64(payload, "id")
	if err != nil {
		return err
	}

	member := &TreeMember{ID: id}

	// Partner and parent are optional; absent means unlinked
	if _, ok := payload["partner"]; ok {
		if member.Partner, err = payloadUint64(payload, "partner"); err != nil {
			return err
		}
	}
	if _, ok := payload["parent"]; ok {
		if member.Parent, err = payloadUint64(payload, "parent"); err != nil {
			return err
		}
	}
	if _, ok := payload["children"]; ok {
		if member.Children, err = payloadUint64Slice(payload, "children"); err != nil {
			return err
		}
	}

	h.Tree.Upsert(member)
	return nil
}
