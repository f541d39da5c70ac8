package exam

import "context"

// Store is the read side of the bank plus the counter write path.
type Store interface {
	LoadCategories(ctx context.Context) ([]Category, error)
	LoadQuota(ctx context.Context, profile string) (Quota, error)
	// IncrementCounter bumps one counter atomically in storage.
	IncrementCounter(ctx context.Context, k QuestionKey, c Counter) error
}

// LoadBank reads and validates the bank from st.
func LoadBank(ctx context.Context, st Store) (*Bank, error) {
	cats, err := st.LoadCategories(ctx)
	if err != nil {
		return nil, err
	}
	return NewBank(cats)
}
