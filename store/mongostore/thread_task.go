// Package mongostore backs store.ThreadStore and store.TaskStore with
// MongoDB collections, mirroring the durability expectations the registry's
// mongo-backed toolset store (runtime/registry/store/mongo) establishes for
// this codebase: documents are the source of truth, the core only sees the
// trait interface.
package mongostore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/store"
	"github.com/agentmesh/runtime/task"
)

// Store implements store.ThreadStore and store.TaskStore against two
// collections in the same database: "threads" and "tasks". Message history
// is embedded on the task document keyed by thread for GetHistory.
type Store struct {
	threads *mongo.Collection
	tasks   *mongo.Collection
}

// New wires a Store against the given database. The caller owns the
// *mongo.Client's lifecycle.
func New(db *mongo.Database) *Store {
	return &Store{
		threads: db.Collection("threads"),
		tasks:   db.Collection("tasks"),
	}
}

type threadDoc struct {
	ID         string         `bson:"_id"`
	AgentID    string         `bson:"agent_id"`
	Title      string         `bson:"title"`
	Attributes map[string]any `bson:"attributes"`
	UpdatedAt  time.Time      `bson:"updated_at"`
}

func toThreadDoc(t task.Thread) threadDoc {
	return threadDoc{ID: t.ID, AgentID: t.AgentID, Title: t.Title, Attributes: t.Attributes, UpdatedAt: t.UpdatedAt}
}

func (d threadDoc) toThread() task.Thread {
	return task.Thread{ID: d.ID, AgentID: d.AgentID, Title: d.Title, Attributes: d.Attributes, UpdatedAt: d.UpdatedAt}
}

// CreateThread is idempotent: a pre-existing document for the same ID is
// returned unmodified, matching the in-memory implementation's contract.
func (s *Store) CreateThread(ctx context.Context, t task.Thread) (task.Thread, error) {
	var existing threadDoc
	err := s.threads.FindOne(ctx, bson.M{"_id": t.ID}).Decode(&existing)
	if err == nil {
		return existing.toThread(), nil
	}
	if err != mongo.ErrNoDocuments {
		return task.Thread{}, err
	}
	if _, err := s.threads.InsertOne(ctx, toThreadDoc(t)); err != nil {
		return task.Thread{}, err
	}
	return t, nil
}

func (s *Store) GetThread(ctx context.Context, id string) (task.Thread, error) {
	var d threadDoc
	err := s.threads.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return task.Thread{}, store.ErrThreadNotFound
	}
	if err != nil {
		return task.Thread{}, err
	}
	return d.toThread(), nil
}

func (s *Store) UpdateThread(ctx context.Context, t task.Thread) error {
	res, err := s.threads.ReplaceOne(ctx, bson.M{"_id": t.ID}, toThreadDoc(t))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrThreadNotFound
	}
	return nil
}

func (s *Store) DeleteThread(ctx context.Context, id string) error {
	_, err := s.threads.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (s *Store) ListThreads(ctx context.Context, agentID string) ([]task.Thread, error) {
	filter := bson.M{}
	if agentID != "" {
		filter["agent_id"] = agentID
	}
	cur, err := s.threads.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []task.Thread
	for cur.Next(ctx) {
		var d threadDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, d.toThread())
	}
	return out, cur.Err()
}

func (s *Store) UpdateThreadWithMessage(ctx context.Context, id string, updatedAt time.Time, attrs map[string]any) error {
	update := bson.M{"$set": bson.M{"updated_at": updatedAt}}
	for k, v := range attrs {
		update["$set"].(bson.M)["attributes."+k] = v
	}
	res, err := s.threads.UpdateOne(ctx, bson.M{"_id": id}, update, options.UpdateOne())
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrThreadNotFound
	}
	return nil
}

type taskDoc struct {
	ID            string          `bson:"_id"`
	ThreadID      string          `bson:"thread_id"`
	Status        task.Status     `bson:"status"`
	ParentTaskID  string          `bson:"parent_task_id"`
	Labels        map[string]string `bson:"labels"`
	StatusMessage string          `bson:"status_message"`
	CreatedAt     time.Time       `bson:"created_at"`
	UpdatedAt     time.Time       `bson:"updated_at"`
	History       []messageDoc    `bson:"history"`
}

type messageDoc struct {
	ID        string    `bson:"id"`
	Role      string    `bson:"role"`
	CreatedAt time.Time `bson:"created_at"`
	Parts     []partDoc `bson:"parts"`
}

// partDoc is a discriminated union over event.Part's six variants, so a
// round trip through Mongo preserves tool calls and tool results rather
// than collapsing every non-text part into nothing. Kind selects which of
// the other fields are meaningful.
type partDoc struct {
	Kind       string    `bson:"kind"`
	Text       string    `bson:"text,omitempty"`
	Data       string    `bson:"data,omitempty"`
	MIMEType   string    `bson:"mime_type,omitempty"`
	Bytes      []byte    `bson:"bytes,omitempty"`
	ToolCallID string    `bson:"tool_call_id,omitempty"`
	ToolName   string    `bson:"tool_name,omitempty"`
	IsError    bool      `bson:"is_error,omitempty"`
	Nested     []partDoc `bson:"nested,omitempty"`
	ArtifactID string    `bson:"artifact_id,omitempty"`
	Path       string    `bson:"path,omitempty"`
	Size       int64     `bson:"size,omitempty"`
	Preview    string    `bson:"preview,omitempty"`
	Structure  string    `bson:"structure,omitempty"`
}

const (
	partKindText       = "text"
	partKindData       = "data"
	partKindImage      = "image"
	partKindToolCall   = "tool_call"
	partKindToolResult = "tool_result"
	partKindArtifact   = "artifact"
)

func toPartDoc(p event.Part) (partDoc, error) {
	switch v := p.(type) {
	case event.TextPart:
		return partDoc{Kind: partKindText, Text: v.Text}, nil
	case event.DataPart:
		return partDoc{Kind: partKindData, Data: string(v.Data)}, nil
	case event.ImagePart:
		return partDoc{Kind: partKindImage, MIMEType: v.MIMEType, Bytes: v.Bytes}, nil
	case event.ToolCallPart:
		return partDoc{Kind: partKindToolCall, ToolCallID: v.ToolCallID, ToolName: v.ToolName, Data: string(v.Input)}, nil
	case event.ToolResultPart:
		nested, err := toPartDocs(v.Parts)
		if err != nil {
			return partDoc{}, err
		}
		return partDoc{Kind: partKindToolResult, ToolCallID: v.ToolCallID, ToolName: v.ToolName, IsError: v.IsError, Nested: nested}, nil
	case event.ArtifactPart:
		return partDoc{Kind: partKindArtifact, ArtifactID: v.ID, Path: v.Path, MIMEType: v.MIMEType, Size: v.Size, Preview: v.Preview, Structure: v.Structure}, nil
	default:
		return partDoc{}, fmt.Errorf("mongostore: unknown part type %T", p)
	}
}

func toPartDocs(parts []event.Part) ([]partDoc, error) {
	docs := make([]partDoc, 0, len(parts))
	for _, p := range parts {
		d, err := toPartDoc(p)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func (d partDoc) toPart() (event.Part, error) {
	switch d.Kind {
	case partKindText:
		return event.TextPart{Text: d.Text}, nil
	case partKindData:
		return event.DataPart{Data: json.RawMessage(d.Data)}, nil
	case partKindImage:
		return event.ImagePart{MIMEType: d.MIMEType, Bytes: d.Bytes}, nil
	case partKindToolCall:
		return event.ToolCallPart{ToolCallID: d.ToolCallID, ToolName: d.ToolName, Input: json.RawMessage(d.Data)}, nil
	case partKindToolResult:
		nested, err := toParts(d.Nested)
		if err != nil {
			return nil, err
		}
		return event.ToolResultPart{ToolCallID: d.ToolCallID, ToolName: d.ToolName, Parts: nested, IsError: d.IsError}, nil
	case partKindArtifact:
		return event.ArtifactPart{ID: d.ArtifactID, Path: d.Path, MIMEType: d.MIMEType, Size: d.Size, Preview: d.Preview, Structure: d.Structure}, nil
	default:
		return nil, fmt.Errorf("mongostore: unknown part kind %q", d.Kind)
	}
}

func toParts(docs []partDoc) ([]event.Part, error) {
	parts := make([]event.Part, 0, len(docs))
	for _, d := range docs {
		p, err := d.toPart()
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, nil
}

func toTaskDoc(t task.Task) taskDoc {
	return taskDoc{
		ID: t.ID, ThreadID: t.ThreadID, Status: t.Status, ParentTaskID: t.ParentTaskID,
		Labels: t.Labels, StatusMessage: t.StatusMessage, CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt,
	}
}

func (d taskDoc) toTask() task.Task {
	return task.Task{
		ID: d.ID, ThreadID: d.ThreadID, Status: d.Status, ParentTaskID: d.ParentTaskID,
		Labels: d.Labels, StatusMessage: d.StatusMessage, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

func (s *Store) CreateTask(ctx context.Context, t task.Task) (task.Task, error) {
	if _, err := s.tasks.InsertOne(ctx, toTaskDoc(t)); err != nil {
		return task.Task{}, err
	}
	return t, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (task.Task, error) {
	var d taskDoc
	err := s.tasks.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return task.Task{}, store.ErrTaskNotFound
	}
	if err != nil {
		return task.Task{}, err
	}
	return d.toTask(), nil
}

func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status task.Status, statusMessage string) error {
	res, err := s.tasks.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status": status, "status_message": statusMessage, "updated_at": time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrTaskNotFound
	}
	return nil
}

func (s *Store) AddMessageToTask(ctx context.Context, taskID string, msg event.Message) error {
	parts, err := toPartDocs(msg.Parts)
	if err != nil {
		return fmt.Errorf("mongostore: encoding message %s parts: %w", msg.ID, err)
	}
	res, err := s.tasks.UpdateOne(ctx, bson.M{"_id": taskID}, bson.M{"$push": bson.M{
		"history": messageDoc{ID: msg.ID, Role: string(msg.Role), CreatedAt: msg.CreatedAt, Parts: parts},
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrTaskNotFound
	}
	return nil
}

func (s *Store) AddEventToTask(ctx context.Context, taskID string, _ event.Event) error {
	var d taskDoc
	err := s.tasks.FindOne(ctx, bson.M{"_id": taskID}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return store.ErrTaskNotFound
	}
	return err
}

func (s *Store) CancelTask(ctx context.Context, id string) (task.Task, error) {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return task.Task{}, err
	}
	if t.Status.Terminal() {
		return t, nil
	}
	if err := s.UpdateTaskStatus(ctx, id, task.StatusCancelled, ""); err != nil {
		return task.Task{}, err
	}
	t.Status = task.StatusCancelled
	return t, nil
}

func (s *Store) ListTasks(ctx context.Context, threadID string) ([]task.Task, error) {
	cur, err := s.tasks.Find(ctx, bson.M{"thread_id": threadID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []task.Task
	for cur.Next(ctx) {
		var d taskDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, d.toTask())
	}
	return out, cur.Err()
}

func (s *Store) GetHistory(ctx context.Context, threadID string, filter store.HistoryFilter) ([]event.Message, error) {
	cur, err := s.tasks.Find(ctx, bson.M{"thread_id": threadID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []event.Message
	for cur.Next(ctx) {
		var d taskDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		for _, m := range d.History {
			if !filter.Since.IsZero() && m.CreatedAt.Before(filter.Since) {
				continue
			}
			parts, err := toParts(m.Parts)
			if err != nil {
				return nil, fmt.Errorf("mongostore: decoding message %s parts: %w", m.ID, err)
			}
			out = append(out, event.Message{
				ID: m.ID, Role: event.Role(m.Role), CreatedAt: m.CreatedAt,
				Parts: parts,
			})
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, cur.Err()
}

var _ store.ThreadStore = (*Store)(nil)
var _ store.TaskStore = (*Store)(nil)
