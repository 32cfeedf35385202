package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"neurosphere-backend/internal/models"
)

const (
	scansCollection          = "scans"
	visualizationsCollection = "visualizations"
)

type scanDocument struct {
	ID                      string             `bson:"_id"`
	Owner                   string             `bson:"owner"`
	Filename                string             `bson:"filename"`
	ContentType             string             `bson:"content_type"`
	Metadata                string             `bson:"metadata,omitempty"`
	Doctor                  string             `bson:"doctor"`
	Status                  string             `bson:"status"`
	Stage                   string             `bson:"stage"`
	Progress                int                `bson:"progress"`
	SourceImageRef          string             `bson:"source_image_ref"`
	Result                  *resultDocument    `bson:"result,omitempty"`
	VisualizationID         string             `bson:"visualization_id,omitempty"`
	ErrorMessage            string             `bson:"error_message"`
	Claimed                 bool               `bson:"claimed"`
	CreatedAt               time.Time          `bson:"created_at"`
	UpdatedAt               time.Time          `bson:"updated_at"`
	EstimatedCompletionTime time.Time          `bson:"estimated_completion_time"`
}

type resultDocument struct {
	Label         string  `bson:"label"`
	Confidence    float64 `bson:"confidence,omitempty"`
	TumorDetected bool    `bson:"tumor_detected"`
	Location      string  `bson:"location"`
	Size          string  `bson:"size"`
	Notes         string  `bson:"notes"`
	ThumbnailRef  string  `bson:"thumbnail_ref,omitempty"`
	HeatmapRef    string  `bson:"heatmap_ref,omitempty"`
}

func newResultDocument(r models.ScanResult) *resultDocument {
	return &resultDocument{
		Label:         r.Label,
		Confidence:    r.Confidence,
		TumorDetected: r.TumorDetected,
		Location:      r.Location,
		Size:          r.Size,
		Notes:         r.Notes,
		ThumbnailRef:  r.ThumbnailRef,
		HeatmapRef:    r.HeatmapRef,
	}
}

func (d *resultDocument) model() *models.ScanResult {
	if d == nil {
		return nil
	}
	return &models.ScanResult{
		Label:         d.Label,
		Confidence:    d.Confidence,
		TumorDetected: d.TumorDetected,
		Location:      d.Location,
		Size:          d.Size,
		Notes:         d.Notes,
		ThumbnailRef:  d.ThumbnailRef,
		HeatmapRef:    d.HeatmapRef,
	}
}

func newScanDocument(s *models.Scan) scanDocument {
	doc := scanDocument{
		ID:                      s.ID.String(),
		Owner:                   s.Owner,
		Filename:                s.Filename,
		ContentType:             s.ContentType,
		Metadata:                string(s.Metadata),
		Doctor:                  s.Doctor,
		Status:                  string(s.Status),
		Stage:                   string(s.Stage),
		Progress:                s.Progress,
		SourceImageRef:          s.SourceImageRef,
		ErrorMessage:            s.ErrorMessage,
		Claimed:                 s.Claimed,
		CreatedAt:               s.CreatedAt,
		UpdatedAt:               s.UpdatedAt,
		EstimatedCompletionTime: s.EstimatedCompletionTime,
	}
	if s.Result != nil {
		doc.Result = newResultDocument(*s.Result)
	}
	if s.VisualizationID != nil {
		doc.VisualizationID = s.VisualizationID.String()
	}
	return doc
}

func (d scanDocument) model() (*models.Scan, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid scan id %q: %w", d.ID, err)
	}
	s := &models.Scan{
		ID:                      id,
		Owner:                   d.Owner,
		Filename:                d.Filename,
		ContentType:             d.ContentType,
		Doctor:                  d.Doctor,
		Status:                  models.ScanStatus(d.Status),
		Stage:                   models.Stage(d.Stage),
		Progress:                d.Progress,
		SourceImageRef:          d.SourceImageRef,
		Result:                  d.Result.model(),
		ErrorMessage:            d.ErrorMessage,
		Claimed:                 d.Claimed,
		CreatedAt:               d.CreatedAt.UTC(),
		UpdatedAt:               d.UpdatedAt.UTC(),
		EstimatedCompletionTime: d.EstimatedCompletionTime.UTC(),
	}
	if d.Metadata != "" {
		s.Metadata = []byte(d.Metadata)
	}
	if d.VisualizationID != "" {
		vizID, err := uuid.Parse(d.VisualizationID)
		if err != nil {
			return nil, fmt.Errorf("invalid visualization id %q: %w", d.VisualizationID, err)
		}
		s.VisualizationID = &vizID
	}
	return s, nil
}

type visualizationDocument struct {
	ID           string                     `bson:"_id"`
	ScanID       string                     `bson:"scan_id"`
	Owner        string                     `bson:"owner"`
	Status       string                     `bson:"status"`
	Progress     int                        `bson:"progress"`
	Params       models.VisualizationParams `bson:"params"`
	HTMLRef      string                     `bson:"html_ref"`
	ErrorMessage string                     `bson:"error_message"`
	CreatedAt    time.Time                  `bson:"created_at"`
	UpdatedAt    time.Time                  `bson:"updated_at"`
}

func (d visualizationDocument) model() (*models.Visualization, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid visualization id %q: %w", d.ID, err)
	}
	scanID, err := uuid.Parse(d.ScanID)
	if err != nil {
		return nil, fmt.Errorf("invalid scan id %q: %w", d.ScanID, err)
	}
	return &models.Visualization{
		ID:           id,
		ScanID:       scanID,
		Owner:        d.Owner,
		Status:       models.VisualizationStatus(d.Status),
		Progress:     d.Progress,
		Params:       d.Params,
		HTMLRef:      d.HTMLRef,
		ErrorMessage: d.ErrorMessage,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}, nil
}

type MongoStore struct {
	client         *mongo.Client
	scans          *mongo.Collection
	visualizations *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(database)
	m := &MongoStore{
		client:         client,
		scans:          db.Collection(scansCollection),
		visualizations: db.Collection(visualizationsCollection),
	}
	if err := m.ensureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	return m, nil
}

func (m *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := m.scans.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create scan indexes: %w", err)
	}
	_, err = m.visualizations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "scan_id", Value: 1}, {Key: "status", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create visualization indexes: %w", err)
	}
	return nil
}

func (m *MongoStore) Scans() ScanStore                   { return m }
func (m *MongoStore) Visualizations() VisualizationStore { return m }

func (m *MongoStore) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *MongoStore) InsertScan(ctx context.Context, scan *models.Scan) error {
	if _, err := m.scans.InsertOne(ctx, newScanDocument(scan)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create scan: %w", err)
	}
	return nil
}

func (m *MongoStore) GetScan(ctx context.Context, id uuid.UUID) (*models.Scan, error) {
	var doc scanDocument
	err := m.scans.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}
	return doc.model()
}

func (f ScanFilter) toBSON() bson.M {
	q := bson.M{}
	if f.Owner != "" {
		q["owner"] = f.Owner
	}
	if f.Status != "" {
		q["status"] = string(f.Status)
	}
	if f.TumorDetected != nil {
		q["result.tumor_detected"] = *f.TumorDetected
	}
	if !f.CreatedAfter.IsZero() {
		q["created_at"] = bson.M{"$gte": f.CreatedAfter}
	}
	return q
}

func (m *MongoStore) ListScans(ctx context.Context, filter ScanFilter, page Page) ([]models.Scan, int64, error) {
	if err := page.validate(); err != nil {
		return nil, 0, err
	}

	q := filter.toBSON()
	total, err := m.scans.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count scans: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(page.Offset))
	if page.Limit > 0 {
		opts.SetLimit(int64(page.Limit))
	}

	cursor, err := m.scans.Find(ctx, q, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list scans: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []scanDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("failed to decode scans: %w", err)
	}

	scans := make([]models.Scan, 0, len(docs))
	for _, doc := range docs {
		s, err := doc.model()
		if err != nil {
			return nil, 0, err
		}
		scans = append(scans, *s)
	}
	return scans, total, nil
}

func (m *MongoStore) CountScans(ctx context.Context, filter ScanFilter) (int64, error) {
	n, err := m.scans.CountDocuments(ctx, filter.toBSON())
	if err != nil {
		return 0, fmt.Errorf("failed to count scans: %w", err)
	}
	return n, nil
}

// guardedUpdate applies update to the document matching id and guard. Zero
// matches resolve to ErrRecordNotFound or ErrConflict.
func guardedUpdate(ctx context.Context, coll *mongo.Collection, id string, guard bson.M, update bson.M) error {
	filter := bson.M{"_id": id}
	for k, v := range guard {
		filter[k] = v
	}
	res, err := coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", coll.Name(), err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", coll.Name(), err)
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return ErrConflict
}

// stagesThrough lists the stages that may precede or equal s.
func stagesThrough(s models.Stage) []string {
	all := []models.Stage{
		models.StageQueued, models.StageUploading, models.StageProcessing,
		models.StageBuilding3DModel, models.StageCompleted,
	}
	var out []string
	for _, st := range all {
		if st.Rank() <= s.Rank() {
			out = append(out, string(st))
		}
	}
	return out
}

func now() time.Time { return time.Now().UTC() }

func (m *MongoStore) ClaimScan(ctx context.Context, id uuid.UUID) error {
	return guardedUpdate(ctx, m.scans, id.String(),
		bson.M{"status": string(models.ScanStatusProcessing), "stage": string(models.StageQueued), "claimed": false},
		bson.M{"$set": bson.M{"claimed": true, "updated_at": now()}},
	)
}

func (m *MongoStore) AdvanceScan(ctx context.Context, id uuid.UUID, stage models.Stage, progress int) error {
	return guardedUpdate(ctx, m.scans, id.String(),
		bson.M{
			"status":   string(models.ScanStatusProcessing),
			"progress": bson.M{"$lte": progress},
			"stage":    bson.M{"$in": stagesThrough(stage)},
		},
		bson.M{"$set": bson.M{"stage": string(stage), "progress": progress, "updated_at": now()}},
	)
}

func (m *MongoStore) CompleteScan(ctx context.Context, id uuid.UUID, result models.ScanResult) error {
	return guardedUpdate(ctx, m.scans, id.String(),
		bson.M{"status": string(models.ScanStatusProcessing)},
		bson.M{"$set": bson.M{
			"status":     string(models.ScanStatusCompleted),
			"stage":      string(models.StageCompleted),
			"progress":   100,
			"result":     newResultDocument(result),
			"updated_at": now(),
		}},
	)
}

func (m *MongoStore) FailScan(ctx context.Context, id uuid.UUID, errorMessage string) error {
	return guardedUpdate(ctx, m.scans, id.String(),
		bson.M{"status": string(models.ScanStatusProcessing)},
		bson.M{"$set": bson.M{
			"status":        string(models.ScanStatusFailed),
			"error_message": errorMessage,
			"updated_at":    now(),
		}},
	)
}

func (m *MongoStore) LinkVisualization(ctx context.Context, scanID, visualizationID uuid.UUID) error {
	return guardedUpdate(ctx, m.scans, scanID.String(), nil,
		bson.M{"$set": bson.M{"visualization_id": visualizationID.String(), "updated_at": now()}},
	)
}

func (m *MongoStore) InsertVisualization(ctx context.Context, viz *models.Visualization) error {
	n, err := m.scans.CountDocuments(ctx, bson.M{"_id": viz.ScanID.String()})
	if err != nil {
		return fmt.Errorf("failed to check scan: %w", err)
	}
	if n == 0 {
		return ErrRecordNotFound
	}

	doc := visualizationDocument{
		ID:           viz.ID.String(),
		ScanID:       viz.ScanID.String(),
		Owner:        viz.Owner,
		Status:       string(viz.Status),
		Progress:     viz.Progress,
		Params:       viz.Params,
		HTMLRef:      viz.HTMLRef,
		ErrorMessage: viz.ErrorMessage,
		CreatedAt:    viz.CreatedAt,
		UpdatedAt:    viz.UpdatedAt,
	}
	if _, err := m.visualizations.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create visualization: %w", err)
	}
	return nil
}

func (m *MongoStore) findVisualization(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*models.Visualization, error) {
	var doc visualizationDocument
	err := m.visualizations.FindOne(ctx, filter, opts...).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get visualization: %w", err)
	}
	return doc.model()
}

func (m *MongoStore) GetVisualization(ctx context.Context, id uuid.UUID) (*models.Visualization, error) {
	return m.findVisualization(ctx, bson.M{"_id": id.String()})
}

func (m *MongoStore) FindActiveVisualization(ctx context.Context, scanID uuid.UUID) (*models.Visualization, error) {
	return m.findVisualization(ctx,
		bson.M{"scan_id": scanID.String(), "status": string(models.VisualizationStatusProcessing)},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	)
}

func (m *MongoStore) UpdateVisualizationProgress(ctx context.Context, id uuid.UUID, progress int) error {
	return guardedUpdate(ctx, m.visualizations, id.String(),
		bson.M{"status": string(models.VisualizationStatusProcessing), "progress": bson.M{"$lte": progress}},
		bson.M{"$set": bson.M{"progress": progress, "updated_at": now()}},
	)
}

func (m *MongoStore) CompleteVisualization(ctx context.Context, id uuid.UUID, htmlRef string) error {
	return guardedUpdate(ctx, m.visualizations, id.String(),
		bson.M{"status": string(models.VisualizationStatusProcessing)},
		bson.M{"$set": bson.M{
			"status":     string(models.VisualizationStatusCompleted),
			"progress":   100,
			"html_ref":   htmlRef,
			"updated_at": now(),
		}},
	)
}

func (m *MongoStore) FailVisualization(ctx context.Context, id uuid.UUID, errorMessage string) error {
	return guardedUpdate(ctx, m.visualizations, id.String(),
		bson.M{"status": string(models.VisualizationStatusProcessing)},
		bson.M{"$set": bson.M{
			"status":        string(models.VisualizationStatusFailed),
			"error_message": errorMessage,
			"updated_at":    now(),
		}},
	)
}
