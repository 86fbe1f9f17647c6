package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/okian/seatalloc/internal/domain/confirmation"
	"github.com/okian/seatalloc/internal/domain/model"
)

const (
	backendMongo    = "mongo"
	defaultDatabase = "seatalloc"
	confirmAttempts = 3
)

var errConfirmContended = errors.New("applicant record kept changing")

// MongoStore persists categories in MongoDB. Pass persistence and category
// replacement run in multi-document transactions, so the server must be a
// replica set or sharded cluster.
type MongoStore struct {
	client     *mongo.Client
	ownsClient bool
	database   string
	now        func() time.Time
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore connects to uri (unless WithClient is given), verifies the
// connection and creates the indexes the roster query relies on.
func NewMongoStore(ctx context.Context, uri string, opts ...MongoOption) (*MongoStore, error) {
	s := &MongoStore{database: defaultDatabase, now: time.Now, ownsClient: true}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err != nil {
			return nil, &model.PersistenceError{Op: "connect", Err: err}
		}
		s.client = client
	}
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		_ = s.Close(ctx)
		return nil, &model.PersistenceError{Op: "ping", Err: err}
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = s.Close(ctx)
		return nil, &model.PersistenceError{Op: "create indexes", Err: err}
	}
	return s, nil
}

func (s *MongoStore) coll(name string) *mongo.Collection {
	return s.client.Database(s.database).Collection(name)
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.coll(collApplicants).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "category", Value: 1}, {Key: "submitted_at", Value: 1}, {Key: "applicant_id", Value: 1}}},
		{Keys: bson.D{{Key: "category", Value: 1}, {Key: "assigned_resource_id", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.coll(collPasses).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "category", Value: 1}, {Key: "finished_at", Value: -1}},
	})
	return err
}

// Backend names the store in metrics and logs.
func (s *MongoStore) Backend() string { return backendMongo }

// Close disconnects the client when the store created it.
func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil || !s.ownsClient {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) FetchEligibleApplicants(ctx context.Context, category model.Category) (out []model.Applicant, err error) {
	defer func(start time.Time) { observe(backendMongo, "fetch_applicants", start, err) }(time.Now())

	filter := bson.M{
		"category": string(category),
		"$or":      bson.A{bson.M{"preferences_submitted": true}, bson.M{"confirmed": true}},
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "submitted_at", Value: 1}, {Key: "applicant_id", Value: 1}})
	cur, err := s.coll(collApplicants).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, &model.PersistenceError{Op: "fetch applicants", Err: err}
	}
	var docs []applicantDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, &model.PersistenceError{Op: "decode applicants", Err: err}
	}
	out = make([]model.Applicant, len(docs))
	for i := range docs {
		out[i] = docs[i].model()
	}
	return out, nil
}

func (s *MongoStore) FetchResources(ctx context.Context, category model.Category) (out []model.Resource, err error) {
	defer func(start time.Time) { observe(backendMongo, "fetch_resources", start, err) }(time.Now())

	cur, err := s.coll(collResources).Find(ctx, bson.M{"category": string(category)},
		options.Find().SetSort(bson.D{{Key: "resource_id", Value: 1}}))
	if err != nil {
		return nil, &model.PersistenceError{Op: "fetch resources", Err: err}
	}
	var docs []resourceDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, &model.PersistenceError{Op: "decode resources", Err: err}
	}
	out = make([]model.Resource, len(docs))
	for i := range docs {
		out[i] = docs[i].model()
	}
	return out, nil
}

// Persist writes a pass in one transaction. The confirmed:false filter on every
// applicant update, checked against the matched count, detects confirmations
// that landed after the snapshot.
func (s *MongoStore) Persist(ctx context.Context, category model.Category, rec PassRecord) (err error) {
	defer func(start time.Time) { observe(backendMongo, "persist_pass", start, err) }(time.Now())

	sess, err := s.client.StartSession()
	if err != nil {
		return &model.PersistenceError{Op: "persist pass", Err: err}
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if len(rec.Assignments) > 0 {
			writes := make([]mongo.WriteModel, 0, len(rec.Assignments))
			ids := make([]string, 0, len(rec.Assignments))
			for id, resourceID := range rec.Assignments {
				ids = append(ids, docKey(category, id))
				writes = append(writes, mongo.NewUpdateOneModel().
					SetFilter(bson.M{"_id": docKey(category, id), "confirmed": false}).
					SetUpdate(bson.M{"$set": bson.M{"assigned_resource_id": resourceID}}))
			}
			present, err := s.coll(collApplicants).CountDocuments(sc, bson.M{"_id": bson.M{"$in": ids}})
			if err != nil {
				return nil, err
			}
			res, err := s.coll(collApplicants).BulkWrite(sc, writes, options.BulkWrite().SetOrdered(false))
			if err != nil {
				return nil, err
			}
			if res.MatchedCount < present {
				return nil, fmt.Errorf("pass %s: %d applicants confirmed during pass: %w",
					rec.Report.PassID, present-res.MatchedCount, model.ErrStaleSnapshot)
			}
		}

		if len(rec.Counts) > 0 {
			writes := make([]mongo.WriteModel, 0, len(rec.Counts))
			for id, n := range rec.Counts {
				writes = append(writes, mongo.NewUpdateOneModel().
					SetFilter(bson.M{"_id": docKey(category, id)}).
					SetUpdate(bson.M{"$set": bson.M{"allocated_count": n}}))
			}
			if _, err := s.coll(collResources).BulkWrite(sc, writes, options.BulkWrite().SetOrdered(false)); err != nil {
				return nil, err
			}
		}

		if rec.Report.PassID != "" {
			if _, err := s.coll(collPasses).InsertOne(sc, newPassDoc(rec.Report)); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, model.ErrStaleSnapshot) {
			return err
		}
		return &model.PersistenceError{Op: "persist pass", Err: err}
	}
	return nil
}

// Confirm flips confirmed with a conditional update so that of two racing
// confirmations exactly one matches. On no match the current document decides
// which error to report; if it has become confirmable meanwhile the update is
// retried.
func (s *MongoStore) Confirm(ctx context.Context, category model.Category, applicantID string) (err error) {
	defer func(start time.Time) { observe(backendMongo, "confirm", start, err) }(time.Now())

	key := docKey(category, applicantID)
	for attempt := 0; attempt < confirmAttempts; attempt++ {
		res, err := s.coll(collApplicants).UpdateOne(ctx,
			bson.M{"_id": key, "assigned_resource_id": bson.M{"$ne": ""}, "confirmed": false},
			bson.M{"$set": bson.M{"confirmed": true, "confirmed_at": s.now().UTC()}},
		)
		if err != nil {
			return &model.PersistenceError{Op: "confirm", Err: err}
		}
		if res.MatchedCount == 1 {
			return nil
		}

		a, err := s.Applicant(ctx, category, applicantID)
		if err != nil {
			return err
		}
		if err := confirmation.Confirm(&a); err != nil {
			return err
		}
	}
	return &model.PersistenceError{Op: "confirm", Err: errConfirmContended}
}

func (s *MongoStore) Assignment(ctx context.Context, category model.Category, applicantID string) (model.AssignmentStatus, error) {
	a, err := s.Applicant(ctx, category, applicantID)
	if err != nil {
		return model.AssignmentStatus{}, err
	}
	return confirmation.Status(&a), nil
}

func (s *MongoStore) Allotments(ctx context.Context, category model.Category) ([]model.AssignmentStatus, error) {
	cur, err := s.coll(collApplicants).Find(ctx, bson.M{"category": string(category)},
		options.Find().SetSort(bson.D{{Key: "applicant_id", Value: 1}}))
	if err != nil {
		return nil, &model.PersistenceError{Op: "list allotments", Err: err}
	}
	var docs []applicantDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, &model.PersistenceError{Op: "decode allotments", Err: err}
	}
	out := make([]model.AssignmentStatus, len(docs))
	for i := range docs {
		a := docs[i].model()
		out[i] = confirmation.Status(&a)
	}
	return out, nil
}

func (s *MongoStore) LatestPass(ctx context.Context, category model.Category) (model.AllocationReport, error) {
	var d passDoc
	err := s.coll(collPasses).FindOne(ctx, bson.M{"category": string(category)},
		options.FindOne().SetSort(bson.D{{Key: "finished_at", Value: -1}})).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.AllocationReport{}, &model.NotFoundError{Kind: "pass", ID: string(category)}
	}
	if err != nil {
		return model.AllocationReport{}, &model.PersistenceError{Op: "latest pass", Err: err}
	}
	return d.model(), nil
}

func (s *MongoStore) AllocationOpen(ctx context.Context, category model.Category) (bool, error) {
	var g gateDoc
	err := s.coll(collGates).FindOne(ctx, bson.M{"_id": string(category)}).Decode(&g)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return true, nil
	}
	if err != nil {
		return false, &model.PersistenceError{Op: "read gate", Err: err}
	}
	return !g.Closed, nil
}

func (s *MongoStore) SetAllocationOpen(ctx context.Context, category model.Category, open bool) error {
	_, err := s.coll(collGates).UpdateOne(ctx,
		bson.M{"_id": string(category)},
		bson.M{"$set": bson.M{"closed": !open, "updated_at": s.now().UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return &model.PersistenceError{Op: "write gate", Err: err}
	}
	return nil
}

func (s *MongoStore) UpsertApplicant(ctx context.Context, category model.Category, a model.Applicant) (err error) {
	defer func(start time.Time) { observe(backendMongo, "upsert_applicant", start, err) }(time.Now())

	if a.ID == "" {
		return model.NewValidationError(model.Issue{Field: "id", Reason: "empty applicant id"})
	}
	completed := append([]string{}, a.CompletedResourceIDs...)
	key := docKey(category, a.ID)

	var current applicantDoc
	err = s.coll(collApplicants).FindOne(ctx, bson.M{"_id": key}).Decode(&current)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
	case err != nil:
		return &model.PersistenceError{Op: "read applicant", Err: err}
	default:
		if err := completedConflict(current.model(), completed); err != nil {
			return err
		}
	}

	// The $nin guard refuses the update if conflicting preferences were
	// submitted after the read; the upsert then collides on _id.
	_, err = s.coll(collApplicants).UpdateOne(ctx,
		bson.M{"_id": key, "preferences.resource_id": bson.M{"$nin": completed}},
		bson.M{
			"$set": bson.M{
				"category":               string(category),
				"applicant_id":           a.ID,
				"name":                   a.Name,
				"merit_score":            a.MeritScore,
				"percentage":             a.Academic.Percentage,
				"cgpa":                   a.Academic.CGPA,
				"completed_resource_ids": completed,
			},
			"$setOnInsert": bson.M{
				"preferences":           bson.A{},
				"preferences_submitted": false,
				"assigned_resource_id":  "",
				"confirmed":             false,
			},
		},
		options.Update().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		return model.NewValidationError(model.Issue{
			ApplicantID: a.ID,
			Field:       "completed_resource_ids",
			Reason:      "conflicts with submitted preferences",
		})
	}
	if err != nil {
		return &model.PersistenceError{Op: "upsert applicant", Err: err}
	}
	return nil
}

func (s *MongoStore) Applicant(ctx context.Context, category model.Category, applicantID string) (model.Applicant, error) {
	var d applicantDoc
	err := s.coll(collApplicants).FindOne(ctx, bson.M{"_id": docKey(category, applicantID)}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Applicant{}, &model.NotFoundError{Kind: "applicant", ID: applicantID}
	}
	if err != nil {
		return model.Applicant{}, &model.PersistenceError{Op: "read applicant", Err: err}
	}
	return d.model(), nil
}

func (s *MongoStore) SubmitPreferences(ctx context.Context, category model.Category, applicantID string, prefs []model.Preference) (err error) {
	defer func(start time.Time) { observe(backendMongo, "submit_preferences", start, err) }(time.Now())

	docs := make([]preferenceDoc, len(prefs))
	for i, p := range prefs {
		docs[i] = preferenceDoc{Rank: p.Rank, ResourceID: p.ResourceID}
	}
	res, err := s.coll(collApplicants).UpdateOne(ctx,
		bson.M{"_id": docKey(category, applicantID), "preferences_submitted": false},
		bson.M{"$set": bson.M{
			"preferences":           docs,
			"preferences_submitted": true,
			"submitted_at":          s.now().UTC(),
		}},
	)
	if err != nil {
		return &model.PersistenceError{Op: "submit preferences", Err: err}
	}
	if res.MatchedCount == 1 {
		return nil
	}
	if _, err := s.Applicant(ctx, category, applicantID); err != nil {
		return err
	}
	return fmt.Errorf("applicant %q: %w", applicantID, model.ErrAlreadySubmitted)
}

func (s *MongoStore) UpsertResource(ctx context.Context, category model.Category, r model.Resource) (err error) {
	defer func(start time.Time) { observe(backendMongo, "upsert_resource", start, err) }(time.Now())

	if err := validateResource(r); err != nil {
		return err
	}
	_, err = s.coll(collResources).UpdateOne(ctx,
		bson.M{"_id": docKey(category, r.ID)},
		bson.M{
			"$set": bson.M{
				"category":              string(category),
				"resource_id":           r.ID,
				"name":                  r.Name,
				"capacity":              r.Capacity,
				"eligibility_threshold": r.EligibilityThreshold,
			},
			"$setOnInsert": bson.M{"allocated_count": 0},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return &model.PersistenceError{Op: "upsert resource", Err: err}
	}
	return nil
}

func (s *MongoStore) DeleteResource(ctx context.Context, category model.Category, resourceID string) (err error) {
	defer func(start time.Time) { observe(backendMongo, "delete_resource", start, err) }(time.Now())

	inUse, err := s.coll(collApplicants).CountDocuments(ctx, bson.M{
		"category": string(category),
		"$or": bson.A{
			bson.M{"assigned_resource_id": resourceID},
			bson.M{"preferences.resource_id": resourceID},
		},
	})
	if err != nil {
		return &model.PersistenceError{Op: "delete resource", Err: err}
	}
	if inUse > 0 {
		return fmt.Errorf("resource %q: %w", resourceID, ErrResourceInUse)
	}
	res, err := s.coll(collResources).DeleteOne(ctx, bson.M{"_id": docKey(category, resourceID)})
	if err != nil {
		return &model.PersistenceError{Op: "delete resource", Err: err}
	}
	if res.DeletedCount == 0 {
		return &model.NotFoundError{Kind: "resource", ID: resourceID}
	}
	return nil
}

func (s *MongoStore) ReplaceCategory(ctx context.Context, category model.Category, applicants []model.Applicant, resources []model.Resource) (err error) {
	defer func(start time.Time) { observe(backendMongo, "replace_category", start, err) }(time.Now())

	now := s.now().UTC()
	appDocs := make([]interface{}, len(applicants))
	for i, a := range applicants {
		if len(a.Preferences) > 0 && a.SubmittedAt.IsZero() {
			a.SubmittedAt = importStamp(now, i)
		}
		appDocs[i] = newApplicantDoc(category, a)
	}
	resDocs := make([]interface{}, len(resources))
	for i, r := range resources {
		resDocs[i] = newResourceDoc(category, r)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return &model.PersistenceError{Op: "replace category", Err: err}
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		filter := bson.M{"category": string(category)}
		if _, err := s.coll(collApplicants).DeleteMany(sc, filter); err != nil {
			return nil, err
		}
		if _, err := s.coll(collResources).DeleteMany(sc, filter); err != nil {
			return nil, err
		}
		if len(appDocs) > 0 {
			if _, err := s.coll(collApplicants).InsertMany(sc, appDocs); err != nil {
				return nil, err
			}
		}
		if len(resDocs) > 0 {
			if _, err := s.coll(collResources).InsertMany(sc, resDocs); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return &model.PersistenceError{Op: "replace category", Err: err}
	}
	return nil
}
