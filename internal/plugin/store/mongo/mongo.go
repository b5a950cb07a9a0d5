package mongo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"chat-service/internal/config"
	"chat-service/internal/model"
	registrycache "chat-service/internal/registry/cache"
	registrymigrate "chat-service/internal/registry/migrate"
	registrystore "chat-service/internal/registry/store"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "mongo",
		Loader: func(ctx context.Context) (registrystore.ChatStore, error) {
			cfg := config.FromContext(ctx)
			opts := options.Client().ApplyURI(cfg.DBURL)
			if cfg.DBMaxOpenConns > 0 {
				opts.SetMaxPoolSize(uint64(cfg.DBMaxOpenConns))
			}
			if cfg.DBMaxIdleConns > 0 {
				opts.SetMinPoolSize(uint64(cfg.DBMaxIdleConns))
			}
			client, err := mongo.Connect(opts)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
			}
			if err := client.Ping(ctx, nil); err != nil {
				return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
			}

			return &MongoStore{
				client:          client,
				db:              client.Database(cfg.DBName),
				profiles:        registrycache.ProfileCacheFromContext(ctx),
				profileTTL:      cfg.ProfileCacheTTL,
				defaultPageSize: cfg.DefaultPageSize,
			}, nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &mongoMigrator{}})
}

type mongoMigrator struct{}

func (m *mongoMigrator) Name() string { return "mongo-schema" }
func (m *mongoMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg != nil && !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "mongo" {
		return nil // skip if not using mongo
	}

	log.Info("Running migration", "name", m.Name())
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.DBURL))
	if err != nil {
		return fmt.Errorf("mongo migration: failed to connect: %w", err)
	}
	defer client.Disconnect(ctx)

	db := client.Database(cfg.DBName)

	collections := map[string][]mongo.IndexModel{
		"users": {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		"chats": {
			{Keys: bson.D{{Key: "participants", Value: 1}}},
			{Keys: bson.D{{Key: "last_activity", Value: -1}}},
		},
		"messages": {
			{Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "sender_id", Value: 1}}},
		},
	}

	for name, indexes := range collections {
		db.CreateCollection(ctx, name)
		if len(indexes) > 0 {
			if _, err := db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
				return fmt.Errorf("mongo migration: failed to create indexes for %s: %w", name, err)
			}
		}
	}

	log.Info("MongoDB schema migration complete")
	return nil
}

// MongoStore implements ChatStore using MongoDB.
type MongoStore struct {
	client          *mongo.Client
	db              *mongo.Database
	profiles        registrycache.ProfileCache
	profileTTL      time.Duration
	defaultPageSize int
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// --- MongoDB document types ---

type userDoc struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	Name         string    `bson:"name"`
	Avatar       *string   `bson:"avatar,omitempty"`
	PasswordHash string    `bson:"password_hash"`
	IsOnline     bool      `bson:"is_online"`
	LastSeen     time.Time `bson:"last_seen"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

type chatDoc struct {
	ID            string    `bson:"_id"`
	Participants  []string  `bson:"participants"`
	IsGroup       bool      `bson:"is_group"`
	GroupName     *string   `bson:"group_name,omitempty"`
	GroupAvatar   *string   `bson:"group_avatar,omitempty"`
	AdminID       *string   `bson:"admin_id,omitempty"`
	LastMessageID *string   `bson:"last_message_id,omitempty"`
	LastActivity  time.Time `bson:"last_activity"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

type receiptDoc struct {
	UserID string    `bson:"user_id"`
	SeenAt time.Time `bson:"seen_at"`
}

type messageDoc struct {
	ID        string       `bson:"_id"`
	ChatID    string       `bson:"chat_id"`
	SenderID  string       `bson:"sender_id"`
	Content   string       `bson:"content"`
	Type      string       `bson:"message_type"`
	SeenBy    []receiptDoc `bson:"seen_by"`
	CreatedAt time.Time    `bson:"created_at"`
}

// --- Collection accessors ---

func (s *MongoStore) users() *mongo.Collection    { return s.db.Collection("users") }
func (s *MongoStore) chats() *mongo.Collection    { return s.db.Collection("chats") }
func (s *MongoStore) messages() *mongo.Collection { return s.db.Collection("messages") }

// --- UUID helpers ---

func uuidToStr(id uuid.UUID) string { return id.String() }
func strToUUID(s string) uuid.UUID  { u, _ := uuid.Parse(s); return u }

func uuidsToStrs(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func strsToUUIDs(ids []string) []uuid.UUID {
	out := make([]uuid.UUID, len(ids))
	for i, id := range ids {
		out[i] = strToUUID(id)
	}
	return out
}

// --- Doc conversion ---

func (d userDoc) asModel() model.User {
	return model.User{
		ID:           strToUUID(d.ID),
		Email:        d.Email,
		Name:         d.Name,
		Avatar:       d.Avatar,
		PasswordHash: d.PasswordHash,
		IsOnline:     d.IsOnline,
		LastSeen:     d.LastSeen,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func (d chatDoc) asModel() model.Chat {
	c := model.Chat{
		ID:           strToUUID(d.ID),
		Participants: strsToUUIDs(d.Participants),
		IsGroup:      d.IsGroup,
		GroupName:    d.GroupName,
		GroupAvatar:  d.GroupAvatar,
		LastActivity: d.LastActivity,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	if d.AdminID != nil {
		id := strToUUID(*d.AdminID)
		c.AdminID = &id
	}
	if d.LastMessageID != nil {
		id := strToUUID(*d.LastMessageID)
		c.LastMessageID = &id
	}
	return c
}

func (d messageDoc) asModel() model.Message {
	m := model.Message{
		ID:        strToUUID(d.ID),
		ChatID:    strToUUID(d.ChatID),
		SenderID:  strToUUID(d.SenderID),
		Content:   d.Content,
		Type:      model.MessageType(d.Type),
		SeenBy:    make([]model.Receipt, len(d.SeenBy)),
		CreatedAt: d.CreatedAt,
	}
	for i, r := range d.SeenBy {
		m.SeenBy[i] = model.Receipt{UserID: strToUUID(r.UserID), SeenAt: r.SeenAt}
	}
	return m
}

// --- Users ---

func (s *MongoStore) CreateUser(ctx context.Context, req registrystore.CreateUserRequest) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	now := time.Now()
	doc := userDoc{
		ID:           uuidToStr(uuid.New()),
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		Avatar:       req.Avatar,
		PasswordHash: req.PasswordHash,
		LastSeen:     now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.users().InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, &registrystore.ConflictError{Message: "User already exist"}
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	user := doc.asModel()
	return &user, nil
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var doc userDoc
	err := s.users().FindOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))}).Decode(&doc)
	if err != nil {
		return nil, &registrystore.NotFoundError{Resource: "user", ID: email}
	}
	user := doc.asModel()
	return &user, nil
}

func (s *MongoStore) GetUsers(ctx context.Context, ids []uuid.UUID) ([]model.User, error) {
	if len(ids) == 0 {
		return []model.User{}, nil
	}
	cur, err := s.users().Find(ctx, bson.M{"_id": bson.M{"$in": uuidsToStrs(ids)}})
	if err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	users := make([]model.User, len(docs))
	for i, d := range docs {
		users[i] = d.asModel()
	}
	return users, nil
}

// --- Profile lookup (cache-backed) ---

// fetchProfiles resolves user profiles for the given IDs, consulting the
// profile cache first and falling back to a single batched $in query for the
// misses. Cache failures are soft.
func (s *MongoStore) fetchProfiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.UserProfile, error) {
	result := make(map[uuid.UUID]model.UserProfile, len(ids))
	var misses []uuid.UUID
	for _, id := range ids {
		if _, ok := result[id]; ok {
			continue
		}
		if s.profiles != nil && s.profiles.Available() {
			if p, err := s.profiles.Get(ctx, id); err == nil && p != nil {
				result[id] = *p
				continue
			}
		}
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		return result, nil
	}

	users, err := s.GetUsers(ctx, misses)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		profile := u.Profile()
		result[u.ID] = profile
		if s.profiles != nil && s.profiles.Available() {
			if err := s.profiles.Set(ctx, profile, s.profileTTL); err != nil {
				log.Debug("Profile cache set failed", "user", u.ID, "err", err)
			}
		}
	}
	return result, nil
}

// --- Chat directory ---

// participantSet builds the deduplicated participant set of the requester and
// the supplied IDs, sorted so set identity is stable in storage and queries.
func participantSet(requesterID uuid.UUID, ids []uuid.UUID) []string {
	seen := map[string]bool{}
	set := []string{uuidToStr(requesterID)}
	seen[uuidToStr(requesterID)] = true
	for _, id := range ids {
		str := uuidToStr(id)
		if !seen[str] {
			seen[str] = true
			set = append(set, str)
		}
	}
	sort.Strings(set)
	return set
}

func (s *MongoStore) CreateOrGetChat(ctx context.Context, requesterID uuid.UUID, req registrystore.CreateChatRequest) (*registrystore.ChatSummary, error) {
	if len(req.ParticipantIDs) == 0 {
		return nil, &registrystore.ValidationError{Field: "participantIds", Message: "Participants are required"}
	}
	participants := participantSet(requesterID, req.ParticipantIDs)
	now := time.Now()

	// Direct chats are deduplicated by participant set: the same unordered
	// pair always resolves to the same thread. Only a confirmed miss falls
	// through to the insert; a failed lookup must not mint a duplicate.
	if !req.IsGroup && len(participants) == 2 {
		var existing chatDoc
		err := s.chats().FindOne(ctx, bson.M{
			"participants": bson.M{"$all": participants, "$size": 2},
			"is_group":     false,
		}).Decode(&existing)
		if err == nil {
			return s.buildChatSummary(ctx, existing)
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("failed to look up direct chat: %w", err)
		}
	}

	doc := chatDoc{
		ID:           uuidToStr(uuid.New()),
		Participants: participants,
		IsGroup:      req.IsGroup,
		LastActivity: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.IsGroup {
		name := strings.TrimSpace(req.GroupName)
		if name == "" {
			return nil, &registrystore.ValidationError{Field: "groupName", Message: "Group name is required"}
		}
		doc.GroupName = &name
		admin := uuidToStr(requesterID)
		doc.AdminID = &admin
	}
	if _, err := s.chats().InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	return s.buildChatSummary(ctx, doc)
}

// buildChatSummary attaches participant profiles and the last-message preview
// to a chat document.
func (s *MongoStore) buildChatSummary(ctx context.Context, doc chatDoc) (*registrystore.ChatSummary, error) {
	summaries, err := s.buildChatSummaries(ctx, []chatDoc{doc})
	if err != nil {
		return nil, err
	}
	return &summaries[0], nil
}

func (s *MongoStore) buildChatSummaries(ctx context.Context, docs []chatDoc) ([]registrystore.ChatSummary, error) {
	var participantIDs []uuid.UUID
	var messageIDs []string
	for _, d := range docs {
		participantIDs = append(participantIDs, strsToUUIDs(d.Participants)...)
		if d.LastMessageID != nil {
			messageIDs = append(messageIDs, *d.LastMessageID)
		}
	}

	profiles, err := s.fetchProfiles(ctx, participantIDs)
	if err != nil {
		return nil, err
	}

	previews := map[string]registrystore.MessagePreview{}
	if len(messageIDs) > 0 {
		cur, err := s.messages().Find(ctx, bson.M{"_id": bson.M{"$in": messageIDs}})
		if err != nil {
			return nil, fmt.Errorf("failed to find last messages: %w", err)
		}
		var msgs []messageDoc
		if err := cur.All(ctx, &msgs); err != nil {
			return nil, fmt.Errorf("failed to decode last messages: %w", err)
		}
		var senderIDs []uuid.UUID
		for _, m := range msgs {
			senderIDs = append(senderIDs, strToUUID(m.SenderID))
		}
		senders, err := s.fetchProfiles(ctx, senderIDs)
		if err != nil {
			return nil, err
		}
		for _, m := range msgs {
			previews[m.ID] = registrystore.MessagePreview{
				ID:         strToUUID(m.ID),
				Content:    m.Content,
				SenderID:   strToUUID(m.SenderID),
				SenderName: senders[strToUUID(m.SenderID)].Name,
				CreatedAt:  m.CreatedAt,
			}
		}
	}

	result := make([]registrystore.ChatSummary, len(docs))
	for i, d := range docs {
		summary := registrystore.ChatSummary{Chat: d.asModel()}
		for _, p := range d.Participants {
			if profile, ok := profiles[strToUUID(p)]; ok {
				summary.ParticipantProfiles = append(summary.ParticipantProfiles, profile)
			}
		}
		if d.LastMessageID != nil {
			if preview, ok := previews[*d.LastMessageID]; ok {
				summary.LastMessage = &preview
			}
		}
		result[i] = summary
	}
	return result, nil
}

func (s *MongoStore) ListChats(ctx context.Context, userID uuid.UUID) ([]registrystore.ChatSummary, error) {
	// Secondary sort on _id keeps the order deterministic when two chats
	// share a lastActivity timestamp.
	opts := options.Find().SetSort(bson.D{{Key: "last_activity", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.chats().Find(ctx, bson.M{"participants": uuidToStr(userID)}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	var docs []chatDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode chats: %w", err)
	}
	return s.buildChatSummaries(ctx, docs)
}

func (s *MongoStore) GetChat(ctx context.Context, chatID uuid.UUID, userID uuid.UUID) (*model.Chat, error) {
	var doc chatDoc
	err := s.chats().FindOne(ctx, bson.M{"_id": uuidToStr(chatID)}).Decode(&doc)
	if err != nil {
		return nil, &registrystore.NotFoundError{Resource: "chat", ID: chatID.String()}
	}
	chat := doc.asModel()
	if !chat.HasParticipant(userID) {
		return nil, &registrystore.ForbiddenError{}
	}
	return &chat, nil
}

// --- Message ledger ---

func (s *MongoStore) AppendMessage(ctx context.Context, chatID uuid.UUID, senderID uuid.UUID, content string, msgType model.MessageType) (*registrystore.MessageDetail, error) {
	if _, err := s.GetChat(ctx, chatID, senderID); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, &registrystore.ValidationError{Field: "content", Message: "Message content is required"}
	}
	if msgType == "" {
		msgType = model.MessageTypeText
	}
	if !msgType.Valid() {
		return nil, &registrystore.ValidationError{Field: "messageType", Message: "unknown message type"}
	}

	now := time.Now()
	doc := messageDoc{
		ID:        uuidToStr(uuid.New()),
		ChatID:    uuidToStr(chatID),
		SenderID:  uuidToStr(senderID),
		Content:   content,
		Type:      string(msgType),
		SeenBy:    []receiptDoc{},
		CreatedAt: now,
	}
	if _, err := s.messages().InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	// The chat metadata update is a second, non-transactional write. A crash
	// between the two leaves the preview stale but never the ledger.
	_, err := s.chats().UpdateByID(ctx, uuidToStr(chatID), bson.M{"$set": bson.M{
		"last_message_id": doc.ID,
		"last_activity":   now,
		"updated_at":      now,
	}})
	if err != nil {
		return nil, fmt.Errorf("failed to update chat activity: %w", err)
	}

	profiles, err := s.fetchProfiles(ctx, []uuid.UUID{senderID})
	if err != nil {
		return nil, err
	}
	return &registrystore.MessageDetail{
		Message: doc.asModel(),
		Sender:  profiles[senderID],
	}, nil
}

func (s *MongoStore) ListMessages(ctx context.Context, chatID uuid.UUID, requesterID uuid.UUID, page, limit int) (*registrystore.MessagePage, error) {
	if _, err := s.GetChat(ctx, chatID, requesterID); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = s.defaultPageSize
		if limit <= 0 {
			limit = 20
		}
	}
	skip := (page - 1) * limit

	filter := bson.M{"chat_id": uuidToStr(chatID)}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))
	cur, err := s.messages().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}

	total, err := s.messages().CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}

	// Reverse the newest-first page so callers receive chronological order
	// and can append newer pages to the end of their display buffer.
	for i, j := 0, len(docs)-1; i < j; i, j = i+1, j-1 {
		docs[i], docs[j] = docs[j], docs[i]
	}

	var senderIDs []uuid.UUID
	for _, d := range docs {
		senderIDs = append(senderIDs, strToUUID(d.SenderID))
	}
	senders, err := s.fetchProfiles(ctx, senderIDs)
	if err != nil {
		return nil, err
	}

	messages := make([]registrystore.MessageDetail, len(docs))
	for i, d := range docs {
		messages[i] = registrystore.MessageDetail{
			Message: d.asModel(),
			Sender:  senders[strToUUID(d.SenderID)],
		}
	}

	return &registrystore.MessagePage{
		Messages:   messages,
		HasMore:    int64(skip+len(docs)) < total,
		Page:       page,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
	}, nil
}

func (s *MongoStore) MarkSeen(ctx context.Context, messageID uuid.UUID, userID uuid.UUID, requireMembership bool) error {
	var doc messageDoc
	err := s.messages().FindOne(ctx, bson.M{"_id": uuidToStr(messageID)}).Decode(&doc)
	if err != nil {
		return &registrystore.NotFoundError{Resource: "message", ID: messageID.String()}
	}
	if requireMembership {
		if _, err := s.GetChat(ctx, strToUUID(doc.ChatID), userID); err != nil {
			return err
		}
	}

	// The filter excludes messages already carrying a receipt for this user,
	// so concurrent and repeated calls record at most one receipt.
	_, err = s.messages().UpdateOne(ctx,
		bson.M{"_id": uuidToStr(messageID), "seen_by.user_id": bson.M{"$ne": uuidToStr(userID)}},
		bson.M{"$push": bson.M{"seen_by": receiptDoc{UserID: uuidToStr(userID), SeenAt: time.Now()}}},
	)
	if err != nil {
		return fmt.Errorf("failed to record receipt: %w", err)
	}
	return nil
}

// Close disconnects the MongoDB client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

var _ registrystore.ChatStore = (*MongoStore)(nil)
