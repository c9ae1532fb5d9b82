package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bookgraph/internal/normalize"
	"bookgraph/internal/types"
)

// MongoStore keeps the graph as one document per ISBN with an embedded
// adjacency list of recommended ISBNs. The document _id carries the ISBN
// uniqueness constraint.
type MongoStore struct {
	client *mongo.Client
	books  *mongo.Collection
	logger *slog.Logger
}

// mongoAuthor embeds an author with both its identity key and the
// display spelling first seen for it.
type mongoAuthor struct {
	Key  string `bson:"key"`
	Name string `bson:"name"`
}

type mongoBook struct {
	ISBN             string        `bson:"_id"`
	Title            string        `bson:"title"`
	PageCount        int           `bson:"page_count"`
	PublishedDate    string        `bson:"published_date"`
	Publisher        string        `bson:"publisher"`
	Format           string        `bson:"format"`
	Edition          string        `bson:"edition"`
	Language         string        `bson:"language"`
	OriginalLanguage string        `bson:"original_language"`
	Rating           float64       `bson:"rating"`
	RatingCount      int           `bson:"rating_count"`
	Description      string        `bson:"description"`
	Rank             int           `bson:"top10k"`
	Status           string        `bson:"status"`
	Authors          []mongoAuthor `bson:"authors"`
	Recommendations  []string      `bson:"recommendations"`
}

// OpenMongo connects to MongoDB and prepares the books collection.
func OpenMongo(ctx context.Context, uri, database string, logger *slog.Logger) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	books := client.Database(database).Collection("books")
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "authors.key", Value: 1}}},
	}
	if _, err := books.Indexes().CreateMany(connectCtx, indexes); err != nil {
		return nil, fmt.Errorf("mongodb indexes: %w", err)
	}

	return &MongoStore{
		client: client,
		books:  books,
		logger: logger.With("component", "mongo_store"),
	}, nil
}

func (s *MongoStore) Name() string { return "mongodb" }

func (s *MongoStore) SaveBook(ctx context.Context, detail *types.BookDetail) error {
	b := &detail.Book

	authors := make([]mongoAuthor, 0, len(detail.Authors))
	for _, name := range detail.Authors {
		if key := normalize.AuthorKey(name); key != "" {
			authors = append(authors, mongoAuthor{Key: key, Name: name})
		}
	}

	doc := mongoBook{
		ISBN:             b.ISBN,
		Title:            b.Title,
		PageCount:        b.PageCount,
		PublishedDate:    b.PublishedDate,
		Publisher:        b.Publisher,
		Format:           b.Format,
		Edition:          b.Edition,
		Language:         b.Language,
		OriginalLanguage: b.OriginalLanguage,
		Rating:           b.Rating,
		RatingCount:      b.RatingCount,
		Description:      b.Description,
		Rank:             b.Rank,
		Status:           string(b.Status),
		Authors:          authors,
		Recommendations:  []string{},
	}

	if b.IsPlaceholder() {
		// Placeholders only ever fill a hole; an existing document of
		// either status wins.
		_, err := s.books.UpdateOne(ctx,
			bson.M{"_id": b.ISBN},
			bson.M{"$setOnInsert": doc},
			options.Update().SetUpsert(true))
		if err != nil {
			return &types.StoreError{Backend: s.Name(), Op: "save_placeholder", Err: err}
		}
		return nil
	}

	// Resolved records upgrade placeholders in place; documents that are
	// already resolved are left untouched, and absent ones are inserted
	// whole. The edge list is preserved either way.
	res, err := s.books.UpdateOne(ctx,
		resolvedUpgradeFilter(b.ISBN),
		resolvedUpgradePipeline(doc))
	if err != nil {
		return &types.StoreError{Backend: s.Name(), Op: "save_book", Err: err}
	}
	if res.MatchedCount > 0 {
		return nil
	}

	_, err = s.books.UpdateOne(ctx,
		bson.M{"_id": b.ISBN},
		bson.M{"$setOnInsert": doc},
		options.Update().SetUpsert(true))
	if err != nil {
		return &types.StoreError{Backend: s.Name(), Op: "save_book", Err: err}
	}
	return nil
}

// resolvedUpgradeFilter matches only a placeholder document for the ISBN,
// so a resolved record never overwrites another resolved one.
func resolvedUpgradeFilter(isbn string) bson.M {
	return bson.M{"_id": isbn, "status": string(types.StatusPlaceholder)}
}

// resolvedUpgradePipeline rewrites a placeholder's fields from the
// resolved record. The rank is conditional: an existing nonzero rank is
// kept, only a zero one takes the incoming value.
func resolvedUpgradePipeline(doc mongoBook) bson.A {
	return bson.A{bson.M{"$set": bson.M{
		"title":             doc.Title,
		"page_count":        doc.PageCount,
		"published_date":    doc.PublishedDate,
		"publisher":         doc.Publisher,
		"format":            doc.Format,
		"edition":           doc.Edition,
		"language":          doc.Language,
		"original_language": doc.OriginalLanguage,
		"rating":            doc.Rating,
		"rating_count":      doc.RatingCount,
		"description":       doc.Description,
		"status":            doc.Status,
		"authors":           doc.Authors,
		"top10k": bson.M{"$cond": bson.A{
			bson.M{"$eq": bson.A{"$top10k", 0}},
			doc.Rank,
			"$top10k",
		}},
	}}}
}

func (s *MongoStore) GetBook(ctx context.Context, isbn string) (*types.Book, error) {
	var doc mongoBook
	err := s.books.FindOne(ctx, bson.M{"_id": isbn}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, types.ErrBookNotFound
	}
	if err != nil {
		return nil, &types.StoreError{Backend: s.Name(), Op: "get_book", Err: err}
	}

	return &types.Book{
		ISBN:             doc.ISBN,
		Title:            doc.Title,
		PageCount:        doc.PageCount,
		PublishedDate:    doc.PublishedDate,
		Publisher:        doc.Publisher,
		Format:           doc.Format,
		Edition:          doc.Edition,
		Language:         doc.Language,
		OriginalLanguage: doc.OriginalLanguage,
		Rating:           doc.Rating,
		RatingCount:      doc.RatingCount,
		Description:      doc.Description,
		Rank:             doc.Rank,
		Status:           types.ResolutionStatus(doc.Status),
	}, nil
}

func (s *MongoStore) UpgradeRank(ctx context.Context, isbn string, rank int) error {
	_, err := s.books.UpdateOne(ctx,
		bson.M{"_id": isbn, "top10k": 0},
		bson.M{"$set": bson.M{"top10k": rank}})
	if err != nil {
		return &types.StoreError{Backend: s.Name(), Op: "upgrade_rank", Err: err}
	}
	return nil
}

func (s *MongoStore) LinkRecommendation(ctx context.Context, sourceISBN, targetISBN string) error {
	_, err := s.books.UpdateOne(ctx,
		bson.M{"_id": sourceISBN},
		bson.M{"$addToSet": bson.M{"recommendations": targetISBN}})
	if err != nil {
		return &types.StoreError{Backend: s.Name(), Op: "link_recommendation", Err: err}
	}
	return nil
}

func (s *MongoStore) BookAuthors(ctx context.Context, isbn string) ([]string, error) {
	var doc mongoBook
	err := s.books.FindOne(ctx, bson.M{"_id": isbn}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, types.ErrBookNotFound
	}
	if err != nil {
		return nil, &types.StoreError{Backend: s.Name(), Op: "book_authors", Err: err}
	}

	names := make([]string, 0, len(doc.Authors))
	for _, a := range doc.Authors {
		names = append(names, a.Name)
	}
	return names, nil
}

func (s *MongoStore) ListPlaceholders(ctx context.Context) ([]types.Book, error) {
	cursor, err := s.books.Find(ctx,
		bson.M{"status": string(types.StatusPlaceholder)},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, &types.StoreError{Backend: s.Name(), Op: "list_placeholders", Err: err}
	}
	defer cursor.Close(ctx)

	var books []types.Book
	for cursor.Next(ctx) {
		var doc mongoBook
		if err := cursor.Decode(&doc); err != nil {
			return nil, &types.StoreError{Backend: s.Name(), Op: "list_placeholders", Err: err}
		}
		books = append(books, types.Book{
			ISBN:   doc.ISBN,
			Title:  doc.Title,
			Rank:   doc.Rank,
			Status: types.StatusPlaceholder,
		})
	}
	return books, cursor.Err()
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
