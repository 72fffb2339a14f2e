package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shestoi/paybridge/internal/payment"
	"github.com/shestoi/paybridge/internal/repository"
)

// DeliveryDocument документ журнала в коллекции webhook_deliveries
type DeliveryDocument struct {
	Provider   string    `bson:"provider"`
	ReceivedAt time.Time `bson:"received_at"`
	Outcome    string    `bson:"outcome"`
	OrderKey   string    `bson:"order_key,omitempty"`
	KeyKind    string    `bson:"key_kind,omitempty"`
	RawStatus  string    `bson:"raw_status,omitempty"`
	Error      string    `bson:"error,omitempty"`
}

// Journal реализует DeliveryJournal используя MongoDB
type Journal struct {
	col *mongo.Collection
}

// NewJournal создаёт журнал и индекс (order_key, received_at)
func NewJournal(client *mongo.Client, dbName string) *Journal {
	col := client.Database(dbName).Collection("webhook_deliveries")

	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "order_key", Value: 1}, {Key: "received_at", Value: -1}},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// индекс уже может существовать
	_, _ = col.Indexes().CreateOne(ctx, indexModel)

	return &Journal{col: col}
}

func (j *Journal) Record(ctx context.Context, d repository.Delivery) error {
	doc := DeliveryDocument{
		Provider:   string(d.Provider),
		ReceivedAt: d.ReceivedAt.UTC(),
		Outcome:    string(d.Outcome),
		OrderKey:   d.OrderKey,
		KeyKind:    string(d.KeyKind),
		RawStatus:  d.RawStatus,
		Error:      d.Error,
	}
	if _, err := j.col.InsertOne(ctx, doc); err != nil {
		return &payment.StoreError{Op: "record delivery", Err: err}
	}
	return nil
}

func (j *Journal) ListByOrderKey(ctx context.Context, key string, limit int) ([]repository.Delivery, error) {
	opts := options.Find().SetSort(bson.D{{Key: "received_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := j.col.Find(ctx, bson.M{"order_key": key}, opts)
	if err != nil {
		return nil, &payment.StoreError{Op: "list deliveries", Err: err}
	}
	defer cur.Close(ctx)

	var docs []DeliveryDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, &payment.StoreError{Op: "list deliveries", Err: err}
	}

	out := make([]repository.Delivery, 0, len(docs))
	for _, doc := range docs {
		out = append(out, repository.Delivery{
			Provider:   payment.Provider(doc.Provider),
			ReceivedAt: doc.ReceivedAt,
			Outcome:    repository.DeliveryOutcome(doc.Outcome),
			OrderKey:   doc.OrderKey,
			KeyKind:    payment.KeyKind(doc.KeyKind),
			RawStatus:  doc.RawStatus,
			Error:      doc.Error,
		})
	}
	return out, nil
}
