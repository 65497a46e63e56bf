package hostlib

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/margarine-lang/marginc/internal/diag"
	"github.com/margarine-lang/marginc/internal/vmrun"
)

// store is the persistent key/value module: a single-table SQLite
// database surviving across VM runs, distinct from the in-memory
// per-function result cache the VM manages itself.
//
//	extern fn get(key: str): str?  = "store::get"
//	extern fn set(key: str, value: str) = "store::set"
//	extern fn delete(key: str): bool = "store::delete"
type store struct {
	db *sql.DB
}

func openStore(path string) (*store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing store %s: %w", path, err)
	}
	return &store{db: db}, nil
}

func (s *store) Close() error {
	return s.db.Close()
}

func (s *store) module() map[string]vmrun.HostFunc {
	return map[string]vmrun.HostFunc{
		"get": func(vm *vmrun.VM, out *vmrun.Reg, status *vmrun.Status) {
			key, ok := argString(vm, 0, status)
			if !ok {
				return
			}
			var value string
			err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
			switch {
			case err == sql.ErrNoRows:
				*out = vm.NewNone()
			case err != nil:
				status.Fault = diag.NewFault(diag.FaultHostReported, "store get: "+err.Error())
			default:
				*out = vm.NewSome(vm.NewString(value))
			}
		},
		"set": func(vm *vmrun.VM, out *vmrun.Reg, status *vmrun.Status) {
			key, ok := argString(vm, 0, status)
			if !ok {
				return
			}
			value, ok := argString(vm, 1, status)
			if !ok {
				return
			}
			_, err := s.db.Exec(
				`INSERT INTO kv (key, value) VALUES (?, ?)
				 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
				key, value)
			if err != nil {
				status.Fault = diag.NewFault(diag.FaultHostReported, "store set: "+err.Error())
				return
			}
			*out = vmrun.UnitReg()
		},
		"delete": func(vm *vmrun.VM, out *vmrun.Reg, status *vmrun.Status) {
			key, ok := argString(vm, 0, status)
			if !ok {
				return
			}
			res, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
			if err != nil {
				status.Fault = diag.NewFault(diag.FaultHostReported, "store delete: "+err.Error())
				return
			}
			n, _ := res.RowsAffected()
			*out = vmrun.BoolReg(n > 0)
		},
	}
}
