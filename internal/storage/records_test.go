package storage

import (
	"errors"
	"testing"
	"time"
)

func TestProfileRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetProfile("nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetProfile(nobody) = %v, want ErrNotFound", err)
	}

	if err := s.UpsertProfile(Profile{ID: "u1", DisplayName: "Ana"}); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}
	p, err := s.GetProfile("u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.SubscriptionStatus != "free" || p.ScanLimitDaily != 0 {
		t.Errorf("defaults not applied: %+v", p)
	}

	p.SubscriptionStatus = "pro"
	p.ScanLimitDaily = 10
	p.UpdatedAt = time.Time{}
	if err := s.UpsertProfile(p); err != nil {
		t.Fatalf("UpsertProfile update: %v", err)
	}
	p, _ = s.GetProfile("u1")
	if p.SubscriptionStatus != "pro" || p.ScanLimitDaily != 10 || p.DisplayName != "Ana" {
		t.Errorf("update not persisted: %+v", p)
	}
}

func TestCollectionItems(t *testing.T) {
	s := openTestStore(t)

	created := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	item := CollectionItem{ID: "i1", UserID: "u1", PhotoURL: "http://x/u1/1.jpg", AIData: `{"brand":"Dior"}`, CreatedAt: created}
	if err := s.SaveItem(item); err != nil {
		t.Fatalf("SaveItem: %v", err)
	}

	dup := item
	dup.ID = "i2"
	if err := s.SaveItem(dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("SaveItem duplicate = %v, want ErrDuplicate", err)
	}

	got, err := s.FindItemByPhoto("u1", "http://x/u1/1.jpg")
	if err != nil {
		t.Fatalf("FindItemByPhoto: %v", err)
	}
	if got.ID != "i1" || !got.CreatedAt.Equal(created) {
		t.Errorf("FindItemByPhoto = %+v", got)
	}

	if _, err := s.GetItem("u2", "i1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetItem from another owner = %v, want ErrNotFound", err)
	}

	s.SaveItem(CollectionItem{ID: "i3", UserID: "u1", PhotoURL: "http://x/u1/2.jpg", AIData: `{}`, CreatedAt: created.Add(time.Minute)})
	items, err := s.ListItems("u1", 0)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 2 || items[0].ID != "i3" {
		t.Errorf("ListItems = %+v", items)
	}
	if items, _ := s.ListItems("u1", 1); len(items) != 1 {
		t.Errorf("ListItems limit 1 returned %d", len(items))
	}

	if err := s.UpdateItemAIData("u1", "i1", `{"brand":"Dior","user_review":{"rating":5}}`); err != nil {
		t.Fatalf("UpdateItemAIData: %v", err)
	}
	got, _ = s.GetItem("u1", "i1")
	if got.AIData != `{"brand":"Dior","user_review":{"rating":5}}` {
		t.Errorf("AIData = %s", got.AIData)
	}
	if err := s.UpdateItemAIData("u2", "i1", `{}`); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateItemAIData other owner = %v", err)
	}

	if err := s.DeleteItem("u1", "i1"); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	if err := s.DeleteItem("u1", "i1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteItem = %v, want ErrNotFound", err)
	}
}

func TestWishlist(t *testing.T) {
	s := openTestStore(t)

	e, err := s.AddWishlist(WishlistEntry{UserID: "u1", Brand: "Lattafa", PerfumeName: "Khamrah"})
	if err != nil {
		t.Fatalf("AddWishlist: %v", err)
	}
	if e.ID == "" {
		t.Error("AddWishlist did not assign an id")
	}
	if _, err := s.AddWishlist(WishlistEntry{UserID: "u1", Brand: "Lattafa", PerfumeName: "Khamrah"}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate AddWishlist = %v", err)
	}

	in, err := s.ToggleWishlist(WishlistEntry{UserID: "u1", Brand: "Lattafa", PerfumeName: "Khamrah"})
	if err != nil || in {
		t.Errorf("ToggleWishlist existing = %v, %v; want false, nil", in, err)
	}
	in, err = s.ToggleWishlist(WishlistEntry{UserID: "u1", Brand: "Armaf", PerfumeName: "Club de Nuit"})
	if err != nil || !in {
		t.Errorf("ToggleWishlist new = %v, %v; want true, nil", in, err)
	}
	if ok, _ := s.InWishlist("u1", "Armaf", "Club de Nuit"); !ok {
		t.Error("InWishlist = false after toggle on")
	}

	list, err := s.ListWishlist("u1")
	if err != nil {
		t.Fatalf("ListWishlist: %v", err)
	}
	if len(list) != 1 || list[0].Brand != "Armaf" {
		t.Fatalf("ListWishlist = %+v", list)
	}
	if err := s.DeleteWishlist("u1", list[0].ID); err != nil {
		t.Fatalf("DeleteWishlist: %v", err)
	}
	if err := s.DeleteWishlist("u1", list[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteWishlist = %v", err)
	}
}

func TestMasterPerfumeUpsert(t *testing.T) {
	s := openTestStore(t)

	p := MasterPerfume{Brand: "Dior", Name: "Sauvage", Description: "fresh", Notes: `{"top":["bergamot"]}`, Usage: `{}`, FullAIData: `{}`}
	if err := s.UpsertMasterPerfume(p); err != nil {
		t.Fatalf("UpsertMasterPerfume: %v", err)
	}
	p.Description = "fresh and spicy"
	p.UpdatedAt = time.Time{}
	if err := s.UpsertMasterPerfume(p); err != nil {
		t.Fatalf("UpsertMasterPerfume again: %v", err)
	}

	got, err := s.GetMasterPerfume("Dior", "Sauvage")
	if err != nil {
		t.Fatalf("GetMasterPerfume: %v", err)
	}
	if got.Description != "fresh and spicy" {
		t.Errorf("Description = %q", got.Description)
	}
	if n, _ := s.CountMasterPerfumes(); n != 1 {
		t.Errorf("CountMasterPerfumes = %d, want 1", n)
	}
	if _, err := s.GetMasterPerfume("Dior", "Fahrenheit"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetMasterPerfume missing = %v", err)
	}
}
