package db

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ConnectMongo initializes and returns a MongoDB client and database instance.
func ConnectMongo(uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	ctxPing, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := client.Ping(ctxPing, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	slog.Info("connected to mongo")
	return client, client.Database(dbName), nil
}

// DisconnectMongo closes the MongoDB client connection.
func DisconnectMongo(client *mongo.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect MongoDB: %w", err)
	}
	slog.Info("mongo connection closed")
	return nil
}

// MongoStore serves the RowStore contract from a MongoDB database holding
// one collection per table. Rows keep their relational id in an "id" field;
// _id is only surfaced when a document has no id of its own. Credentials
// are not enforced here since MongoDB has no row level security.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoStore(client *mongo.Client, database *mongo.Database) *MongoStore {
	return &MongoStore{client: client, db: database}
}

func (s *MongoStore) Close(ctx context.Context) error {
	return DisconnectMongo(s.client)
}

func (s *MongoStore) Select(ctx context.Context, creds Credentials, q Query) ([]Row, error) {
	if err := s.checkShape(ctx, q); err != nil {
		return nil, err
	}
	pipeline, err := buildMongoPipeline(q)
	if err != nil {
		return nil, err
	}
	cursor, err := s.db.Collection(q.Table).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", q.Table, err)
	}
	defer cursor.Close(ctx)

	rows := []Row{}
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode %s document: %w", q.Table, err)
		}
		rows = append(rows, rowFromDocument(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("select from %s: %w", q.Table, err)
	}
	return rows, nil
}

func (s *MongoStore) SelectOne(ctx context.Context, creds Credentials, q Query) (Row, error) {
	q.Limit = 1
	rows, err := s.Select(ctx, creds, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	return rows[0], nil
}

func (s *MongoStore) Count(ctx context.Context, creds Credentials, q Query) (int, error) {
	q.Order = nil
	q.Embed = nil
	if err := s.checkShape(ctx, q); err != nil {
		return 0, err
	}
	filter, err := buildMongoFilter(q.Filters)
	if err != nil {
		return 0, err
	}
	n, err := s.db.Collection(q.Table).CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Table, err)
	}
	return int(n), nil
}

func (s *MongoStore) Insert(ctx context.Context, creds Credentials, table string, rows ...Row) ([]Row, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	docs := make([]interface{}, 0, len(rows))
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		c := cloneRow(r)
		if _, ok := c["id"]; !ok {
			c["id"] = primitive.NewObjectID().Hex()
		}
		if _, ok := c["created_at"]; !ok {
			c["created_at"] = now
		}
		docs = append(docs, bson.M(c))
		out = append(out, c)
	}
	if _, err := s.db.Collection(table).InsertMany(ctx, docs); err != nil {
		if IsMongoDuplicateKeyError(err) {
			return nil, fmt.Errorf("insert into %s: %w: %w", table, ErrDuplicateKey, err)
		}
		return nil, fmt.Errorf("insert into %s: %w", table, err)
	}
	return out, nil
}

// checkShape reports missing collections and fields the way a relational
// store would. A field is unknown when the collection has documents but none
// of them carry it.
func (s *MongoStore) checkShape(ctx context.Context, q Query) error {
	if err := s.checkCollection(ctx, q.Table); err != nil {
		return err
	}
	if q.Embed != nil {
		if err := s.checkCollection(ctx, q.Embed.Table); err != nil {
			return err
		}
	}

	coll := s.db.Collection(q.Table)
	total, err := coll.EstimatedDocumentCount(ctx)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", q.Table, err)
	}
	if total == 0 {
		return nil
	}

	columns := map[string]bool{}
	for _, f := range q.Filters {
		for _, c := range f.referencedColumns() {
			columns[c] = true
		}
	}
	for _, o := range q.Order {
		columns[o.Column] = true
	}
	for c := range columns {
		n, err := coll.CountDocuments(ctx, bson.M{c: bson.M{"$exists": true}}, options.Count().SetLimit(1))
		if err != nil {
			return fmt.Errorf("inspect %s.%s: %w", q.Table, c, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, q.Table, c)
		}
	}
	return nil
}

func (s *MongoStore) checkCollection(ctx context.Context, name string) error {
	names, err := s.db.ListCollectionNames(ctx, bson.M{"name": name})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	if len(names) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return nil
}

// matchValues returns the candidates an equality test should accept, so that
// "5" matches both a string id and a numeric one.
func matchValues(v interface{}) []interface{} {
	if b, ok := v.(bool); ok {
		return []interface{}{b}
	}
	s := scalarString(v)
	out := []interface{}{s}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		out = append(out, n, int32(n), float64(n))
	} else if f, err := strconv.ParseFloat(s, 64); err == nil {
		out = append(out, f)
	}
	return out
}

func buildMongoFilter(filters []Filter) (bson.M, error) {
	if len(filters) == 0 {
		return bson.M{}, nil
	}
	clauses := make(bson.A, 0, len(filters))
	for _, f := range filters {
		switch f.Op {
		case OpEq, OpContains:
			clauses = append(clauses, bson.M{f.Column: bson.M{"$in": matchValues(f.Value)}})
		case OpNeq:
			clauses = append(clauses, bson.M{f.Column: bson.M{"$exists": true, "$ne": nil, "$nin": matchValues(f.Value)}})
		case OpIn:
			var vals []interface{}
			for _, v := range f.Values {
				vals = append(vals, matchValues(v)...)
			}
			clauses = append(clauses, bson.M{f.Column: bson.M{"$in": vals}})
		case OpILike:
			if len(f.Columns) == 0 {
				return nil, fmt.Errorf("ilike filter needs at least one column")
			}
			pattern := regexp.QuoteMeta(fmt.Sprint(f.Value))
			or := make(bson.A, 0, len(f.Columns))
			for _, c := range f.Columns {
				or = append(or, bson.M{c: primitive.Regex{Pattern: pattern, Options: "i"}})
			}
			clauses = append(clauses, bson.M{"$or": or})
		default:
			return nil, fmt.Errorf("unsupported filter %q", f.Op)
		}
	}
	if len(clauses) == 1 {
		return clauses[0].(bson.M), nil
	}
	return bson.M{"$and": clauses}, nil
}

func buildMongoPipeline(q Query) (mongo.Pipeline, error) {
	filter, err := buildMongoFilter(q.Filters)
	if err != nil {
		return nil, err
	}
	pipeline := mongo.Pipeline{{{Key: "$match", Value: filter}}}
	if len(q.Order) > 0 {
		sortDoc := bson.D{}
		for _, o := range q.Order {
			dir := 1
			if o.Desc {
				dir = -1
			}
			sortDoc = append(sortDoc, bson.E{Key: o.Column, Value: dir})
		}
		pipeline = append(pipeline, bson.D{{Key: "$sort", Value: sortDoc}})
	}
	if q.Offset > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$skip", Value: int64(q.Offset)}})
	}
	if q.Limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: int64(q.Limit)}})
	}
	if q.Embed != nil {
		pipeline = append(pipeline, bson.D{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: q.Embed.Table},
			{Key: "localField", Value: "id"},
			{Key: "foreignField", Value: q.Embed.ForeignKey},
			{Key: "as", Value: q.Embed.Table},
		}}})
	}
	return pipeline, nil
}

func rowFromDocument(doc bson.M) Row {
	row := Row(plainDocument(doc))
	if oid, ok := row["_id"]; ok {
		if _, hasID := row["id"]; !hasID {
			row["id"] = oid
		}
		delete(row, "_id")
	}
	return row
}

// plainDocument converts driver types into the JSON-like shapes the rest of
// the code expects.
func plainDocument(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = plainBSON(v)
	}
	return out
}

func plainBSON(v interface{}) interface{} {
	switch val := v.(type) {
	case bson.M:
		return plainDocument(val)
	case map[string]interface{}:
		return plainDocument(val)
	case bson.D:
		m := make(map[string]interface{}, len(val))
		for _, e := range val {
			m[e.Key] = plainBSON(e.Value)
		}
		return m
	case bson.A:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = plainBSON(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = plainBSON(item)
		}
		return out
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time().UTC().Format(time.RFC3339Nano)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case primitive.Decimal128:
		f, err := strconv.ParseFloat(val.String(), 64)
		if err != nil {
			return val.String()
		}
		return f
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case int:
		return float64(val)
	default:
		return val
	}
}

