package store

import "github.com/google/uuid"

func newRoundID() string { return "rnd-" + uuid.NewString() }
