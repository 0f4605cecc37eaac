package repo

import (
	"context"
	"database/sql"
	"errors"
)

// Repo is the stub backend's storage layer over the workspace SQLite
// database. The real backend owns authoritative state; this exists so the
// client can be exercised end to end locally.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// UserRow mirrors the backend's user account.
type UserRow struct {
	ID           int64
	Name         string
	Email        string
	Mobile       string
	PasswordHash string
	UserType     string
	CreatedAt    string
}

// VolunteerRow mirrors the backend's volunteer profile.
type VolunteerRow struct {
	ID           int64
	UserID       int64
	VType        string
	Area         string
	Latitude     float64
	Longitude    float64
	Skill        string
	Availability bool
}

// ReportRow mirrors the backend's report entity.
type ReportRow struct {
	ID           int64
	Description  string
	Location     string
	Latitude     sql.NullFloat64
	Longitude    sql.NullFloat64
	ImagePath    sql.NullString
	Category     string
	Status       string
	CitizenID    int64
	VolunteerID  sql.NullInt64
	CreationDate string
	LastUpdated  string
}

func (r Repo) InsertUser(ctx context.Context, u UserRow) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO users(name,email,mobile,password_hash,user_type,created_at) VALUES (?,?,?,?,?,?)`,
		u.Name, u.Email, nullable(u.Mobile), u.PasswordHash, u.UserType, u.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func scanUser(row *sql.Row) (UserRow, error) {
	var u UserRow
	var mobile sql.NullString
	err := row.Scan(&u.ID, &u.Name, &u.Email, &mobile, &u.PasswordHash, &u.UserType, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if mobile.Valid {
		u.Mobile = mobile.String
	}
	return u, err
}

const userCols = `id,name,email,mobile,password_hash,user_type,created_at`

func (r Repo) GetUser(ctx context.Context, id int64) (UserRow, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (UserRow, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email=?`, email))
}

func (r Repo) ListUsers(ctx context.Context) ([]UserRow, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userCols+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []UserRow
	for rows.Next() {
		var u UserRow
		var mobile sql.NullString
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &mobile, &u.PasswordHash, &u.UserType, &u.CreatedAt); err != nil {
			return nil, err
		}
		if mobile.Valid {
			u.Mobile = mobile.String
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r Repo) InsertVolunteer(ctx context.Context, v VolunteerRow) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO volunteers(user_id,vtype,area,latitude,longitude,skill,availability) VALUES (?,?,?,?,?,?,?)`,
		v.UserID, v.VType, nullable(v.Area), v.Latitude, v.Longitude, nullable(v.Skill), boolInt(v.Availability))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const volunteerCols = `id,user_id,vtype,COALESCE(area,''),COALESCE(latitude,0),COALESCE(longitude,0),COALESCE(skill,''),availability`

func scanVolunteer(row *sql.Row) (VolunteerRow, error) {
	var v VolunteerRow
	var avail int
	err := row.Scan(&v.ID, &v.UserID, &v.VType, &v.Area, &v.Latitude, &v.Longitude, &v.Skill, &avail)
	if err == sql.ErrNoRows {
		return v, ErrNotFound
	}
	v.Availability = avail != 0
	return v, err
}

func (r Repo) GetVolunteerByUserID(ctx context.Context, userID int64) (VolunteerRow, error) {
	return scanVolunteer(r.DB.QueryRowContext(ctx, `SELECT `+volunteerCols+` FROM volunteers WHERE user_id=?`, userID))
}

func (r Repo) ListVolunteers(ctx context.Context) ([]VolunteerRow, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+volunteerCols+` FROM volunteers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var vols []VolunteerRow
	for rows.Next() {
		var v VolunteerRow
		var avail int
		if err := rows.Scan(&v.ID, &v.UserID, &v.VType, &v.Area, &v.Latitude, &v.Longitude, &v.Skill, &avail); err != nil {
			return nil, err
		}
		v.Availability = avail != 0
		vols = append(vols, v)
	}
	return vols, rows.Err()
}

func (r Repo) SetAvailability(ctx context.Context, userID int64, available bool) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE volunteers SET availability=? WHERE user_id=?`, boolInt(available), userID)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertReport(ctx context.Context, rep ReportRow) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO reports(description,location,latitude,longitude,imagepath,category,status,citizen_id,volunteer_id,creation_date,last_updated)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		rep.Description, rep.Location, rep.Latitude, rep.Longitude, rep.ImagePath,
		rep.Category, rep.Status, rep.CitizenID, rep.VolunteerID, rep.CreationDate, rep.LastUpdated)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const reportCols = `id,description,location,latitude,longitude,imagepath,category,status,citizen_id,volunteer_id,creation_date,last_updated`

func scanReport(row *sql.Row) (ReportRow, error) {
	var rep ReportRow
	err := row.Scan(&rep.ID, &rep.Description, &rep.Location, &rep.Latitude, &rep.Longitude,
		&rep.ImagePath, &rep.Category, &rep.Status, &rep.CitizenID, &rep.VolunteerID,
		&rep.CreationDate, &rep.LastUpdated)
	if err == sql.ErrNoRows {
		return rep, ErrNotFound
	}
	return rep, err
}

func (r Repo) GetReport(ctx context.Context, id int64) (ReportRow, error) {
	return scanReport(r.DB.QueryRowContext(ctx, `SELECT `+reportCols+` FROM reports WHERE id=?`, id))
}

func (r Repo) listReports(ctx context.Context, query string, args ...any) ([]ReportRow, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reports []ReportRow
	for rows.Next() {
		var rep ReportRow
		if err := rows.Scan(&rep.ID, &rep.Description, &rep.Location, &rep.Latitude, &rep.Longitude,
			&rep.ImagePath, &rep.Category, &rep.Status, &rep.CitizenID, &rep.VolunteerID,
			&rep.CreationDate, &rep.LastUpdated); err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}

func (r Repo) ListReportsByCitizen(ctx context.Context, citizenID int64) ([]ReportRow, error) {
	return r.listReports(ctx, `SELECT `+reportCols+` FROM reports WHERE citizen_id=? ORDER BY id DESC`, citizenID)
}

func (r Repo) ListReportsByVolunteer(ctx context.Context, volunteerID int64) ([]ReportRow, error) {
	return r.listReports(ctx, `SELECT `+reportCols+` FROM reports WHERE volunteer_id=? ORDER BY id DESC`, volunteerID)
}

func (r Repo) ListUnassignedReports(ctx context.Context) ([]ReportRow, error) {
	return r.listReports(ctx, `SELECT `+reportCols+` FROM reports WHERE volunteer_id IS NULL AND status='CREATED' ORDER BY id DESC`)
}

func (r Repo) ListReports(ctx context.Context) ([]ReportRow, error) {
	return r.listReports(ctx, `SELECT `+reportCols+` FROM reports ORDER BY id DESC`)
}

// ClaimIfCreated assigns a volunteer only while the report is still
// unassigned. A conditional update keeps the claim race-safe: zero rows
// affected means someone else won.
func (r Repo) ClaimIfCreated(ctx context.Context, reportID, volunteerID int64, now string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE reports SET volunteer_id=?, status='ASSIGNED', last_updated=? WHERE id=? AND status='CREATED' AND volunteer_id IS NULL`,
		volunteerID, now, reportID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r Repo) UpdateReportStatus(ctx context.Context, reportID int64, status, now string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE reports SET status=?, last_updated=? WHERE id=?`, status, now, reportID)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
