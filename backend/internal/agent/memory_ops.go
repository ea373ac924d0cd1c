package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"discord-agent/backend/internal/constants"
	"discord-agent/backend/internal/state"
	apperrors "discord-agent/backend/pkg/errors"
)

// applyMemoryOp applies one memory_ops entry. Each op succeeds or fails on its own;
// delete and tag only touch records of the originating guild.
func (o *Orchestrator) applyMemoryOp(ctx context.Context, msg state.IncomingMessage, op state.MemoryOp) error {
	switch op.Op {
	case constants.MemoryOpUpsert:
		return o.upsertFromOp(ctx, msg, op)
	case constants.MemoryOpDelete:
		if _, err := o.ownedRecord(ctx, msg.Guild.ID, op); err != nil {
			return err
		}
		if err := o.deps.Memories.Delete(ctx, op.Key); err != nil {
			return apperrors.NewMemoryOpFailed(op.Op, op.Key, "delete failed", err)
		}
		return nil
	case constants.MemoryOpTag:
		tags := tagsFromOp(op)
		if len(tags) == 0 {
			return apperrors.NewMemoryOpFailed(op.Op, op.Key, "no tags given", nil)
		}
		if _, err := o.ownedRecord(ctx, msg.Guild.ID, op); err != nil {
			return err
		}
		if _, err := o.deps.Memories.Tag(ctx, op.Key, tags); err != nil {
			return apperrors.NewMemoryOpFailed(op.Op, op.Key, "tag failed", err)
		}
		return nil
	}
	return apperrors.NewMemoryOpFailed(op.Op, op.Key, "unknown op", nil)
}

func (o *Orchestrator) upsertFromOp(ctx context.Context, msg state.IncomingMessage, op state.MemoryOp) error {
	text := strings.TrimSpace(op.MetaString("text"))
	if text == "" {
		return apperrors.NewMemoryOpFailed(op.Op, op.Key, "meta.text is required", nil)
	}

	rec := state.MemoryRecord{
		Text:      text,
		Summary:   op.MetaString("summary"),
		GuildID:   msg.Guild.ID,
		ChannelID: op.MetaString("channel_id"),
		UserID:    op.MetaString("user_id"),
		MessageID: msg.ID,
		Tags:      op.MetaStrings("tags"),
		Embedding: op.Vector,
	}
	if rec.ChannelID == "" {
		rec.ChannelID = msg.Channel.ID
	}
	if rec.UserID == "" {
		rec.UserID = msg.Author.ID
	}

	if _, err := o.deps.Memories.Upsert(ctx, rec); err != nil {
		return apperrors.NewMemoryOpFailed(op.Op, op.Key, "upsert failed", err)
	}
	return nil
}

// ownedRecord loads the record an op refers to and rejects records from other guilds
func (o *Orchestrator) ownedRecord(ctx context.Context, guildID string, op state.MemoryOp) (*state.MemoryRecord, error) {
	rec, err := o.deps.Memories.Get(ctx, op.Key)
	if err != nil {
		return nil, apperrors.NewMemoryOpFailed(op.Op, op.Key, "lookup failed", err)
	}
	if rec.GuildID != guildID {
		return nil, apperrors.NewMemoryOpFailed(op.Op, op.Key, "record belongs to another guild", nil)
	}
	return rec, nil
}

// tagsFromOp reads meta.tags, falling back to "k:v" pairs built from the remaining meta
func tagsFromOp(op state.MemoryOp) []string {
	if tags := op.MetaStrings("tags"); len(tags) > 0 {
		return tags
	}
	tags := make([]string, 0, len(op.Meta))
	for k, v := range op.Meta {
		if k == "tags" || v == nil {
			continue
		}
		tags = append(tags, fmt.Sprintf("%s:%v", k, v))
	}
	sort.Strings(tags)
	return tags
}
