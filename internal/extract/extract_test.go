package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
		src  string
		want Format
	}{
		{"sql extension", "0001_init.sql", "CREATE TABLE t (id int);", FormatSQL},
		{"typeorm class", "1700000000-AddUsers.ts", "export class AddUsers1700000000 implements MigrationInterface {}", FormatTypeORM},
		{"typeorm runner", "m.ts", "async up(queryRunner: QueryRunner) {}", FormatTypeORM},
		{"sequelize", "m.js", "module.exports = { up: async (queryInterface) => {} };", FormatSequelize},
		{"knex", "m.js", "exports.up = function (knex) {};", FormatKnex},
		{"unknown extension is sql", "file.txt", "whatever", FormatSQL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Detect(tt.path, []byte(tt.src)))
		})
	}
}

func TestExtractRawSQLStripsBOM(t *testing.T) {
	t.Parallel()

	res, err := Source("m.sql", []byte("\xEF\xBB\xBFSELECT 1;"), FormatSQL)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1;", res.SQL)
	assert.Empty(t, res.Warnings)
	assert.False(t, res.AutoCommit)
}

const typeormMigration = `import { MigrationInterface, QueryRunner } from "typeorm";

export class AddStatus1700000000001 implements MigrationInterface {
    public async up(queryRunner: QueryRunner): Promise<void> {
        await queryRunner.query("ALTER TABLE users ADD COLUMN status varchar(20)");
        await queryRunner.query(` + "`CREATE INDEX idx_users_status ON users(status)`" + `);
    }

    public async down(queryRunner: QueryRunner): Promise<void> {
        await queryRunner.query("ALTER TABLE users DROP COLUMN status");
    }
}
`

func TestTypeORMExtraction(t *testing.T) {
	t.Parallel()

	res, err := Source("m.ts", []byte(typeormMigration), FormatTypeORM)
	require.NoError(t, err)

	assert.Contains(t, res.SQL, "ALTER TABLE users ADD COLUMN status varchar(20);")
	assert.Contains(t, res.SQL, "CREATE INDEX idx_users_status ON users(status);")
	// The down method is not analyzed.
	assert.NotContains(t, res.SQL, "DROP COLUMN status")
	assert.Empty(t, res.Warnings)
	assert.False(t, res.AutoCommit)
}

func TestTypeORMDynamicSQLWarns(t *testing.T) {
	t.Parallel()

	src := `export class M implements MigrationInterface {
    async up(queryRunner: QueryRunner): Promise<void> {
        const table = "users";
        await queryRunner.query("SELECT 1");
        await queryRunner.query(` + "`ALTER TABLE ${table} DROP COLUMN x`" + `);
        await queryRunner.query(buildSQL());
    }
}`
	res, err := Source("m.ts", []byte(src), FormatTypeORM)
	require.NoError(t, err)

	assert.Contains(t, res.SQL, "SELECT 1;")
	assert.NotContains(t, res.SQL, "DROP COLUMN x")
	require.Len(t, res.Warnings, 2)
	for _, w := range res.Warnings {
		assert.Contains(t, w.Message, "Dynamic SQL")
		assert.Equal(t, "m.ts", w.File)
		assert.Greater(t, w.Line, 1)
	}
}

func TestTypeORMConditionalSQLWarns(t *testing.T) {
	t.Parallel()

	src := `export class M implements MigrationInterface {
    async up(queryRunner: QueryRunner): Promise<void> {
        if (process.env.FAST) {
            await queryRunner.query("DROP INDEX idx_old");
        }
        await queryRunner.query("SELECT 1");
    }
}`
	res, err := Source("m.ts", []byte(src), FormatTypeORM)
	require.NoError(t, err)

	// Conditional SQL is still included, plus a warning.
	assert.Contains(t, res.SQL, "DROP INDEX idx_old;")
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0].Message, "Conditional SQL")
}

func TestTypeORMAutoCommitHint(t *testing.T) {
	t.Parallel()

	src := `export class M implements MigrationInterface {
    transaction = false;
    async up(queryRunner: QueryRunner): Promise<void> {
        await queryRunner.query("CREATE INDEX CONCURRENTLY idx ON users(email)");
    }
}`
	res, err := Source("m.ts", []byte(src), FormatTypeORM)
	require.NoError(t, err)
	assert.True(t, res.AutoCommit)
}

func TestTypeORMMissingUp(t *testing.T) {
	t.Parallel()

	res, err := Source("m.ts", []byte("export class M {}"), FormatTypeORM)
	require.NoError(t, err)
	assert.Empty(t, res.SQL)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0].Message, "No up() method")
}

const knexMigration = `exports.up = function (knex) {
  return knex.schema.createTable("users", (table) => {
    table.bigIncrements("id");
    table.string("email", 320).notNullable().unique();
    table.string("name");
    table.jsonb("settings").defaultTo("{}");
    table.integer("org_id").notNullable().references("id").inTable("orgs").onDelete("cascade");
    table.timestamp("created_at").defaultTo(knex.fn.now());
    table.specificType("tags", "text[]");
  });
};

exports.down = function (knex) {
  return knex.schema.dropTable("users");
};
`

func TestKnexCreateTableTranspilation(t *testing.T) {
	t.Parallel()

	res, err := Source("m.js", []byte(knexMigration), FormatKnex)
	require.NoError(t, err)

	assert.Contains(t, res.SQL, "CREATE TABLE users")
	assert.Contains(t, res.SQL, "id bigserial PRIMARY KEY")
	assert.Contains(t, res.SQL, "email varchar(320) NOT NULL UNIQUE")
	assert.Contains(t, res.SQL, "name varchar(255)")
	assert.Contains(t, res.SQL, "settings jsonb DEFAULT '{}'")
	assert.Contains(t, res.SQL, "org_id integer NOT NULL REFERENCES orgs (id) ON DELETE CASCADE")
	assert.Contains(t, res.SQL, "created_at timestamp DEFAULT pgfence_volatile_expr()")
	assert.Contains(t, res.SQL, "tags text[]")
	// down() is not analyzed.
	assert.NotContains(t, res.SQL, "DROP TABLE users")
}

func TestKnexAlterTableTranspilation(t *testing.T) {
	t.Parallel()

	src := `export async function up(knex) {
  await knex.schema.alterTable("users", (t) => {
    t.string("nickname", 50);
    t.dropColumn("legacy");
    t.renameColumn("mail", "email");
  });
}`
	res, err := Source("m.ts", []byte(src), FormatKnex)
	require.NoError(t, err)

	assert.Contains(t, res.SQL, "ALTER TABLE users ADD COLUMN nickname varchar(50);")
	assert.Contains(t, res.SQL, "ALTER TABLE users DROP COLUMN legacy;")
	assert.Contains(t, res.SQL, "ALTER TABLE users RENAME COLUMN mail TO email;")
}

func TestKnexRawAndDropForms(t *testing.T) {
	t.Parallel()

	src := `exports.up = async function (knex) {
  await knex.raw("SET lock_timeout = '2s'");
  await knex.schema.raw("CREATE INDEX CONCURRENTLY idx ON users(email)");
  await knex.schema.dropTableIfExists("tmp_import");
  await knex.schema.renameTable("old_users", "users_archive");
};`
	res, err := Source("m.js", []byte(src), FormatKnex)
	require.NoError(t, err)

	assert.Contains(t, res.SQL, "SET lock_timeout = '2s';")
	assert.Contains(t, res.SQL, "CREATE INDEX CONCURRENTLY idx ON users(email);")
	assert.Contains(t, res.SQL, "DROP TABLE IF EXISTS tmp_import;")
	assert.Contains(t, res.SQL, "ALTER TABLE old_users RENAME TO users_archive;")
}

func TestKnexUnsupportedBuilderWarns(t *testing.T) {
	t.Parallel()

	src := `exports.up = function (knex) {
  return knex.schema.withSchema("analytics").createTable("t", () => {});
};`
	res, err := Source("m.js", []byte(src), FormatKnex)
	require.NoError(t, err)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0].Message, "Unsupported knex schema builder method")
}

func TestKnexDynamicRawWarns(t *testing.T) {
	t.Parallel()

	src := "exports.up = function (knex) { return knex.raw(`DROP TABLE ${name}`); };"
	res, err := Source("m.js", []byte(src), FormatKnex)
	require.NoError(t, err)
	assert.Empty(t, res.SQL)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0].Message, "Dynamic SQL")
}

const sequelizeMigration = `'use strict';

module.exports = {
  up: async (queryInterface, Sequelize) => {
    await queryInterface.createTable('orders', {
      id: { type: Sequelize.BIGINT, primaryKey: true, autoIncrement: true },
      status: { type: Sequelize.STRING(32), allowNull: false, defaultValue: 'pending' },
      total: Sequelize.DECIMAL(10, 2),
      user_id: { type: Sequelize.BIGINT, references: { model: 'users', key: 'id' } },
      created_at: { type: Sequelize.DATE, defaultValue: Sequelize.NOW }
    });
    await queryInterface.addColumn('users', 'last_order_at', Sequelize.DATE);
    await queryInterface.addIndex('orders', ['user_id']);
    await queryInterface.sequelize.query('CREATE INDEX CONCURRENTLY idx_orders_status ON orders(status)');
  },

  down: async (queryInterface) => {
    await queryInterface.dropTable('orders');
  }
};
`

func TestSequelizeTranspilation(t *testing.T) {
	t.Parallel()

	res, err := Source("m.js", []byte(sequelizeMigration), FormatSequelize)
	require.NoError(t, err)

	assert.Contains(t, res.SQL, "CREATE TABLE orders")
	assert.Contains(t, res.SQL, "id bigint PRIMARY KEY GENERATED BY DEFAULT AS IDENTITY")
	assert.Contains(t, res.SQL, "status varchar(32) NOT NULL DEFAULT 'pending'")
	assert.Contains(t, res.SQL, "total numeric(10,2)")
	assert.Contains(t, res.SQL, "user_id bigint REFERENCES users (id)")
	assert.Contains(t, res.SQL, "created_at timestamptz DEFAULT now()")
	assert.Contains(t, res.SQL, "ALTER TABLE users ADD COLUMN last_order_at timestamptz;")
	assert.Contains(t, res.SQL, "CREATE INDEX ON orders (user_id);")
	assert.Contains(t, res.SQL, "CREATE INDEX CONCURRENTLY idx_orders_status ON orders(status);")
	assert.NotContains(t, res.SQL, "DROP TABLE orders")
	assert.Empty(t, res.Warnings)
}

func TestSequelizeColumnOps(t *testing.T) {
	t.Parallel()

	src := `module.exports = {
  async up(queryInterface, Sequelize) {
    await queryInterface.removeColumn('users', 'legacy');
    await queryInterface.renameColumn('users', 'mail', 'email');
    await queryInterface.changeColumn('users', 'bio', Sequelize.TEXT);
    await queryInterface.removeIndex('users', 'idx_users_mail');
    await queryInterface.renameTable('old', 'older');
  }
};`
	res, err := Source("m.js", []byte(src), FormatSequelize)
	require.NoError(t, err)

	assert.Contains(t, res.SQL, "ALTER TABLE users DROP COLUMN legacy;")
	assert.Contains(t, res.SQL, "ALTER TABLE users RENAME COLUMN mail TO email;")
	assert.Contains(t, res.SQL, "ALTER TABLE users ALTER COLUMN bio TYPE text;")
	assert.Contains(t, res.SQL, "DROP INDEX idx_users_mail;")
	assert.Contains(t, res.SQL, "ALTER TABLE old RENAME TO older;")
}

func TestSequelizeDynamicTableWarns(t *testing.T) {
	t.Parallel()

	src := `module.exports = {
  async up(queryInterface) {
    await queryInterface.dropTable(tableName);
  }
};`
	res, err := Source("m.js", []byte(src), FormatSequelize)
	require.NoError(t, err)
	assert.Empty(t, res.SQL)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0].Message, "Dynamic table name")
}

func TestSQLJoinerAddsTerminators(t *testing.T) {
	t.Parallel()

	j := &sqlJoiner{}
	j.add("SELECT 1")
	j.add("SELECT 2;")
	j.add("  ")
	got := j.String()
	assert.Equal(t, "SELECT 1;\nSELECT 2;", got)
	assert.Equal(t, 2, strings.Count(got, ";"))
}
