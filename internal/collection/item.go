// Package collection assembles identified perfumes into the persisted
// collection record shape.
package collection

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/sillage/internal/analysis"
	"github.com/kalambet/sillage/internal/storage"
)

var (
	ErrNoIdentification = errors.New("collection: identification is required")
	ErrNoOwner          = errors.New("collection: owner id is required")
	ErrNoPhoto          = errors.New("collection: photo reference is required")
	ErrInvalidRating    = errors.New("collection: rating must be between 1 and 5")
)

// Review is the owner's own rating of a collected perfume.
type Review struct {
	Rating  int       `json:"rating"`
	Comment string    `json:"comment"`
	Date    time.Time `json:"date"`
}

// AIData is the structured payload stored with each item: the identification
// plus the optional review.
type AIData struct {
	analysis.Identification
	UserReview *Review `json:"user_review,omitempty"`
}

// Item is one perfume in a user's collection.
type Item struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"user_id"`
	PhotoURL  string    `json:"photo_url"`
	AIData    AIData    `json:"ai_data"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Assemble builds a new Item from an identification. It performs no I/O.
func Assemble(id *analysis.Identification, photoRef, ownerID string, now time.Time) (Item, error) {
	switch {
	case id == nil:
		return Item{}, ErrNoIdentification
	case strings.TrimSpace(ownerID) == "":
		return Item{}, ErrNoOwner
	case strings.TrimSpace(photoRef) == "":
		return Item{}, ErrNoPhoto
	}

	data := *id
	data.Notes.Top = cloneStrings(id.Notes.Top)
	data.Notes.Heart = cloneStrings(id.Notes.Heart)
	data.Notes.Base = cloneStrings(id.Notes.Base)
	data.Usage.Occasions = cloneStrings(id.Usage.Occasions)
	data.Usage.Season = cloneStrings(id.Usage.Season)
	data.Normalize()

	now = now.UTC().Truncate(time.Second)
	return Item{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		PhotoURL:  photoRef,
		AIData:    AIData{Identification: data},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ValidateReview checks the rating range.
func ValidateReview(r Review) error {
	if r.Rating < 1 || r.Rating > 5 {
		return ErrInvalidRating
	}
	return nil
}

// WithReview returns item with review attached. A zero review date is set
// to now.
func WithReview(item Item, review Review, now time.Time) (Item, error) {
	if err := ValidateReview(review); err != nil {
		return Item{}, err
	}
	if review.Date.IsZero() {
		review.Date = now.UTC().Truncate(time.Second)
	}
	review.Comment = strings.TrimSpace(review.Comment)
	item.AIData.UserReview = &review
	item.UpdatedAt = now.UTC().Truncate(time.Second)
	return item, nil
}

// ToRecord converts item to its storage row.
func ToRecord(item Item) (storage.CollectionItem, error) {
	b, err := json.Marshal(item.AIData)
	if err != nil {
		return storage.CollectionItem{}, fmt.Errorf("encoding ai_data: %w", err)
	}
	return storage.CollectionItem{
		ID:        item.ID,
		UserID:    item.OwnerID,
		PhotoURL:  item.PhotoURL,
		AIData:    string(b),
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}, nil
}

// FromRecord decodes a storage row.
func FromRecord(rec storage.CollectionItem) (Item, error) {
	var data AIData
	if err := json.Unmarshal([]byte(rec.AIData), &data); err != nil {
		return Item{}, fmt.Errorf("decoding ai_data for item %s: %w", rec.ID, err)
	}
	data.Normalize()
	return Item{
		ID:        rec.ID,
		OwnerID:   rec.UserID,
		PhotoURL:  rec.PhotoURL,
		AIData:    data,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
