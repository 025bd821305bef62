package dbclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"collector/internal/document"
	"collector/internal/domain"
)

// mongoConnector implements Connector for MongoDB. Queries and statements
// are JSON commands (see mongoQuery).
type mongoConnector struct {
	client  *mongo.Client
	dbName  string
	timeout time.Duration
}

// mongoQuery is the JSON structure used for MongoDB queries and statements.
type mongoQuery struct {
	Collection string          `json:"collection"`
	Operation  string          `json:"operation,omitempty"` // find (default), aggregate, insertOne, insertMany, updateMany, deleteMany
	Filter     json.RawMessage `json:"filter,omitempty"`
	Projection json.RawMessage `json:"projection,omitempty"`
	Sort       json.RawMessage `json:"sort,omitempty"`
	Limit      int64           `json:"limit,omitempty"`
	Skip       int64           `json:"skip,omitempty"`
	Document   json.RawMessage `json:"document,omitempty"`  // insertOne
	Documents  json.RawMessage `json:"documents,omitempty"` // insertMany
	Update     json.RawMessage `json:"update,omitempty"`    // updateMany
	Pipeline   json.RawMessage `json:"pipeline,omitempty"`  // aggregate
}

func newMongoConnector(conn *domain.DatabaseConnection, password string, timeout time.Duration) (*mongoConnector, error) {
	uri, dbName := mongoURI(conn, password)

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	slog.Debug("mongo: client created", "database", dbName)
	return &mongoConnector{client: client, dbName: dbName, timeout: timeout}, nil
}

// mongoURI builds the connection URI and database name. Host may already
// be a full mongodb:// or mongodb+srv:// URI.
func mongoURI(conn *domain.DatabaseConnection, password string) (string, string) {
	var uri string
	if strings.HasPrefix(conn.Host, "mongodb+srv://") || strings.HasPrefix(conn.Host, "mongodb://") {
		uri = conn.Host
		// Replace <password> placeholder commonly found in Atlas connection strings
		if password != "" {
			uri = strings.ReplaceAll(uri, "<password>", password)
			uri = strings.ReplaceAll(uri, "<db_password>", password)
		}
	} else {
		port := conn.Port
		if port == 0 {
			port = 27017
		}
		if conn.Username != "" {
			uri = fmt.Sprintf("mongodb://%s:%s@%s:%d", conn.Username, password, conn.Host, port)
		} else {
			uri = fmt.Sprintf("mongodb://%s:%d", conn.Host, port)
		}
		// extras carry authSource, replicaSet and friends
		if extras := extraParams(conn); len(extras) > 0 {
			q := url.Values{}
			for k, v := range extras {
				q.Set(k, v)
			}
			uri += "/?" + q.Encode()
		}
	}

	dbName := conn.Database
	if dbName == "" {
		dbName = databaseFromURI(uri)
	}
	return uri, dbName
}

// databaseFromURI extracts the path of user:pass@host/DB_NAME?params.
func databaseFromURI(uri string) string {
	rest := uri
	for _, prefix := range []string{"mongodb+srv://", "mongodb://"} {
		rest = strings.TrimPrefix(rest, prefix)
	}
	if at := strings.LastIndex(rest, "@"); at != -1 {
		rest = rest[at+1:]
	}
	slash := strings.Index(rest, "/")
	if slash == -1 {
		return "test"
	}
	name := rest[slash+1:]
	if q := strings.Index(name, "?"); q != -1 {
		name = name[:q]
	}
	if name == "" {
		return "test"
	}
	return name
}

// parseEJSON decodes an Extended JSON fragment ($oid, $date, $numberLong...)
// into bson. An empty fragment yields def.
func parseEJSON(raw json.RawMessage, def any) (any, error) {
	if len(raw) == 0 {
		return def, nil
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var wrap struct {
			V bson.A `bson:"v"`
		}
		if err := bson.UnmarshalExtJSON([]byte(`{"v":`+trimmed+`}`), false, &wrap); err != nil {
			return nil, fmt.Errorf("extended json: %w", err)
		}
		return wrap.V, nil
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		return nil, fmt.Errorf("extended json: %w", err)
	}
	return doc, nil
}

func (m *mongoConnector) parse(query string) (mongoQuery, *mongo.Collection, error) {
	var mq mongoQuery
	if err := json.Unmarshal([]byte(query), &mq); err != nil {
		return mq, nil, fmt.Errorf("invalid query JSON: %w", err)
	}
	if mq.Collection == "" {
		return mq, nil, fmt.Errorf("query must specify 'collection'")
	}
	return mq, m.client.Database(m.dbName).Collection(mq.Collection), nil
}

func (m *mongoConnector) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.client.Ping(ctx, nil)
}

func (m *mongoConnector) Query(ctx context.Context, query string) ([]document.Value, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	mq, coll, err := m.parse(query)
	if err != nil {
		return nil, err
	}

	var cursor *mongo.Cursor
	switch mq.Operation {
	case "", "find":
		filter, err := parseEJSON(mq.Filter, bson.D{})
		if err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		opts := options.Find()
		if len(mq.Projection) > 0 {
			p, err := parseEJSON(mq.Projection, nil)
			if err != nil {
				return nil, fmt.Errorf("projection: %w", err)
			}
			opts.SetProjection(p)
		}
		if len(mq.Sort) > 0 {
			s, err := parseEJSON(mq.Sort, nil)
			if err != nil {
				return nil, fmt.Errorf("sort: %w", err)
			}
			opts.SetSort(s)
		}
		if mq.Limit > 0 {
			opts.SetLimit(mq.Limit)
		}
		if mq.Skip > 0 {
			opts.SetSkip(mq.Skip)
		}
		cursor, err = coll.Find(ctx, filter, opts)
		if err != nil {
			return nil, fmt.Errorf("find: %w", err)
		}
	case "aggregate":
		pipeline, err := parseEJSON(mq.Pipeline, bson.A{})
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		cursor, err = coll.Aggregate(ctx, pipeline)
		if err != nil {
			return nil, fmt.Errorf("aggregate: %w", err)
		}
	default:
		return nil, fmt.Errorf("operation %q is not a read", mq.Operation)
	}
	defer cursor.Close(ctx)

	out := []document.Value{}
	for cursor.Next(ctx) {
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		out = append(out, fromBSON(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return out, nil
}

func (m *mongoConnector) Exec(ctx context.Context, stmt string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	mq, coll, err := m.parse(stmt)
	if err != nil {
		return 0, err
	}

	switch mq.Operation {
	case "insertOne":
		doc, err := parseEJSON(mq.Document, nil)
		if err != nil || doc == nil {
			return 0, fmt.Errorf("insertOne requires 'document': %v", err)
		}
		if _, err := coll.InsertOne(ctx, doc); err != nil {
			return 0, fmt.Errorf("insertOne: %w", err)
		}
		return 1, nil
	case "insertMany":
		docs, err := parseEJSON(mq.Documents, nil)
		arr, ok := docs.(bson.A)
		if err != nil || !ok {
			return 0, fmt.Errorf("insertMany requires 'documents' array: %v", err)
		}
		res, err := coll.InsertMany(ctx, []any(arr))
		if err != nil {
			return 0, fmt.Errorf("insertMany: %w", err)
		}
		return int64(len(res.InsertedIDs)), nil
	case "updateMany":
		filter, err := parseEJSON(mq.Filter, bson.D{})
		if err != nil {
			return 0, fmt.Errorf("filter: %w", err)
		}
		update, err := parseEJSON(mq.Update, nil)
		if err != nil || update == nil {
			return 0, fmt.Errorf("updateMany requires 'update': %v", err)
		}
		res, err := coll.UpdateMany(ctx, filter, update)
		if err != nil {
			return 0, fmt.Errorf("updateMany: %w", err)
		}
		return res.ModifiedCount, nil
	case "deleteMany":
		filter, err := parseEJSON(mq.Filter, bson.D{})
		if err != nil {
			return 0, fmt.Errorf("filter: %w", err)
		}
		res, err := coll.DeleteMany(ctx, filter)
		if err != nil {
			return 0, fmt.Errorf("deleteMany: %w", err)
		}
		return res.DeletedCount, nil
	default:
		return 0, fmt.Errorf("unsupported write operation: %q", mq.Operation)
	}
}

func (m *mongoConnector) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// fromBSON converts decoded BSON into a document, keeping field order.
func fromBSON(v any) document.Value {
	switch t := v.(type) {
	case bson.D:
		obj := document.ObjectValue()
		for _, e := range t {
			obj.Set(e.Key, fromBSON(e.Value))
		}
		return obj
	case bson.A:
		items := make([]document.Value, len(t))
		for i, it := range t {
			items[i] = fromBSON(it)
		}
		return document.ArrayValue(items...)
	case bson.M:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := document.ObjectValue()
		for _, k := range keys {
			obj.Set(k, fromBSON(t[k]))
		}
		return obj
	case bson.ObjectID:
		return document.StringValue(t.Hex())
	case bson.DateTime:
		return document.StringValue(t.Time().UTC().Format(time.RFC3339))
	case bson.Decimal128:
		return document.StringValue(t.String())
	case bson.Binary:
		return document.StringValue(fmt.Sprintf("%x", t.Data))
	default:
		return document.FromAny(t)
	}
}
