package ribbit_test

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/FocuswithJustin/RibbitDB/core/ribbit"
)

func Example() {
	dir, _ := os.MkdirTemp("", "ribbit-example-*")
	defer os.RemoveAll(dir)

	db, err := ribbit.Open(filepath.Join(dir, "app.rbx"))
	if err != nil {
		fmt.Println(err)
		return
	}
	defer db.Close()

	db.Execute("CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, age INTEGER)")
	db.Execute("INSERT INTO users VALUES (1, 'alice', 30), (2, 'bob', 25)")

	rows, _ := db.Query("SELECT name FROM users WHERE age > ? ORDER BY name", 20)
	for _, r := range rows {
		fmt.Println(r["name"])
	}
	// Output:
	// alice
	// bob
}

func ExampleDB_Execute_transaction() {
	dir, _ := os.MkdirTemp("", "ribbit-example-*")
	defer os.RemoveAll(dir)

	db, _ := ribbit.Open(filepath.Join(dir, "tx.rbx"))
	defer db.Close()

	db.Execute("CREATE TABLE accounts (id INTEGER, balance INTEGER)")
	db.Execute("INSERT INTO accounts VALUES (1, 100)")

	db.Execute("BEGIN")
	db.Execute("UPDATE accounts SET balance = 0 WHERE id = 1")
	db.Execute("ROLLBACK")

	res, _ := db.Execute("SELECT balance FROM accounts")
	fmt.Println(res.Rows[0][0])
	// Output: 100
}

func ExampleDB_Insert() {
	dir, _ := os.MkdirTemp("", "ribbit-example-*")
	defer os.RemoveAll(dir)

	db, _ := ribbit.Open(filepath.Join(dir, "crud.rbx"))
	defer db.Close()

	id := ribbit.NewColumn("id", "INTEGER")
	id.PrimaryKey, id.AutoIncrement = true, true
	db.CreateTable("notes", []ribbit.Column{id, ribbit.NewColumn("body", "TEXT")})
	db.Insert("notes", map[string]any{"body": "first"})
	db.Insert("notes", map[string]any{"body": "second"})

	rows, _ := db.Select("notes", map[string]any{"body": "second"})
	fmt.Println(rows[0]["id"], rows[0]["body"])
	// Output: 2 second
}
