package model

type User struct {
	UID          int64
	Name         string
	PasswordHash string
	Level        int
	Token        string
}

// PeriodEntry is one named, ordered time slot inside a period-template group.
// OwnerToken references users.token, not users.uid; the token is the ownership
// key across all schedule tables.
type PeriodEntry struct {
	CCID       string
	CID        string
	OwnerToken string
	Label      string
	Index      int
	Start      int
	End        int
}

type Term struct {
	CID          string
	CCID         string
	OwnerToken   string
	FirstSchool  string
	SecondSchool string
	ClassCount   int
	WeekCount    int
	Start        int64
	End          int64
}

// ClassEntry occupies one weekday/period slot in a term. RefC references the
// period-template entry (PeriodEntry.CCID) the class runs in.
type ClassEntry struct {
	CCID       string
	CID        string
	OwnerToken string
	TableName  string
	ClassName  string
	Week       string
	Weekday    string
	RefC       string
	Teacher    string
	Location   string
	Classroom  string
}
