package repository

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/bazaardial/internal/models"
)

// MongoStore keeps users and businesses in two MongoDB collections.
type MongoStore struct {
	client     *mongo.Client
	users      *mongo.Collection
	businesses *mongo.Collection
}

// NewMongoStore binds the store to db and creates the unique indexes.
func NewMongoStore(ctx context.Context, client *mongo.Client, db *mongo.Database) (*MongoStore, error) {
	s := &MongoStore{
		client:     client,
		users:      db.Collection("users"),
		businesses: db.Collection("businesses"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	unique := func(name string) *options.IndexOptions {
		return options.Index().SetUnique(true).SetName(name)
	}
	sparse := func(name string) *options.IndexOptions {
		return unique(name).SetSparse(true)
	}

	if _, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique("idx_users_username")},
		{Keys: bson.D{{Key: "mobile", Value: 1}}, Options: sparse("idx_users_mobile")},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: sparse("idx_users_email")},
	}); err != nil {
		return err
	}

	_, err := s.businesses.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "ownerId", Value: 1}}, Options: unique("idx_businesses_owner")},
		{Keys: bson.D{{Key: "primaryPhone", Value: 1}}, Options: unique("idx_businesses_primary_phone")},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "category", Value: 1}}},
	})
	return err
}

func (s *MongoStore) Users() UserStore         { return &mongoUsers{col: s.users} }
func (s *MongoStore) Businesses() BusinessStore { return &mongoBusinesses{col: s.businesses} }

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// translateMongo maps driver errors onto the repository errors. The violated
// index is recovered from the server message since the driver exposes no field.
func translateMongo(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		msg := err.Error()
		for index, field := range pgConstraintFields {
			if strings.Contains(msg, index) {
				return &DuplicateError{Field: field, Err: err}
			}
		}
		return &DuplicateError{Err: err}
	}
	return err
}

func excludeID(filter bson.M, id string) bson.M {
	if id != "" {
		filter["_id"] = bson.M{"$ne": id}
	}
	return filter
}

type mongoUsers struct {
	col *mongo.Collection
}

func (r *mongoUsers) Create(ctx context.Context, u *models.User) error {
	u.Touch(time.Now().UTC())
	_, err := r.col.InsertOne(ctx, u)
	return translateMongo(err)
}

func (r *mongoUsers) Save(ctx context.Context, u *models.User) error {
	u.Touch(time.Now().UTC())
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": u.ID}, u, options.Replace().SetUpsert(true))
	return translateMongo(err)
}

func (r *mongoUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoUsers) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *mongoUsers) FindByMobile(ctx context.Context, mobile string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"mobile": mobile})
}

func (r *mongoUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *mongoUsers) UsernameTaken(ctx context.Context, username, exclude string) (bool, error) {
	n, err := r.col.CountDocuments(ctx, excludeID(bson.M{"username": username}, exclude), options.Count().SetLimit(1))
	return n > 0, err
}

func (r *mongoUsers) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	if err := r.col.FindOne(ctx, filter).Decode(&u); err != nil {
		return nil, translateMongo(err)
	}
	return &u, nil
}

type mongoBusinesses struct {
	col *mongo.Collection
}

func (r *mongoBusinesses) Create(ctx context.Context, b *models.Business) error {
	b.Touch(time.Now().UTC())
	_, err := r.col.InsertOne(ctx, b)
	return translateMongo(err)
}

func (r *mongoBusinesses) Save(ctx context.Context, b *models.Business) error {
	b.Touch(time.Now().UTC())
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": b.ID}, b, options.Replace().SetUpsert(true))
	return translateMongo(err)
}

func (r *mongoBusinesses) FindByID(ctx context.Context, id string) (*models.Business, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoBusinesses) FindByOwner(ctx context.Context, ownerID string) (*models.Business, error) {
	return r.findOne(ctx, bson.M{"ownerId": ownerID})
}

func (r *mongoBusinesses) PhoneTaken(ctx context.Context, phone, exclude string) (bool, error) {
	n, err := r.col.CountDocuments(ctx, excludeID(bson.M{"primaryPhone": phone}, exclude), options.Count().SetLimit(1))
	return n > 0, err
}

func (r *mongoBusinesses) DeleteByOwner(ctx context.Context, ownerID string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"ownerId": ownerID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoBusinesses) List(ctx context.Context, f ListFilter) ([]models.Business, error) {
	filter := bson.M{}
	if f.Query != "" {
		filter["businessName"] = primitive.Regex{Pattern: regexp.QuoteMeta(f.Query), Options: "i"}
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(f.Offset))
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	items := make([]models.Business, 0)
	if err := cur.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *mongoBusinesses) findOne(ctx context.Context, filter bson.M) (*models.Business, error) {
	var b models.Business
	if err := r.col.FindOne(ctx, filter).Decode(&b); err != nil {
		return nil, translateMongo(err)
	}
	return &b, nil
}
