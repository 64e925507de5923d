package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/dormhub/pkg/db/pagination"
)

type CreateRoomRequest struct {
	Number   string `json:"number"`
	Floor    int    `json:"floor"`
	Capacity int    `json:"capacity"`
	Price    string `json:"price"`
}

type ListRoomRequest struct {
	PageToken string
	PageSize  int
	Status    string
}

type ListRoomFilter struct {
	Status Status
}

type ListRoomResponse struct {
	pagination.PageInfo
	Rooms []Room `json:"rooms"`
}

type Service interface {
	Create(context.Context, CreateRoomRequest) (Room, error)
	GetByID(context.Context, string) (Room, error)
	List(context.Context, ListRoomRequest) (ListRoomResponse, error)
}

var (
	ErrInvalidID       = errors.New("invalid_room_id")
	ErrInvalidNumber   = errors.New("invalid_room_number")
	ErrInvalidPrice    = errors.New("invalid_room_price")
	ErrInvalidCapacity = errors.New("invalid_room_capacity")
	ErrInvalidStatus   = errors.New("invalid_room_status")
	ErrDuplicateNumber = errors.New("duplicate_room_number")
	ErrNotFound        = errors.New("room_not_found")
)
