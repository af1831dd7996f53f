package kitty

// Created is emitted when create or breed commits.
type Created struct {
	Owner  Account
	ID     ID
	Genome Genome
}

// Transferred is emitted when transfer commits.
type Transferred struct {
	From Account
	To   Account
	ID   ID
}
