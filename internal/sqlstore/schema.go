package sqlstore

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS tarjeta (
		numero              VARCHAR(19)  PRIMARY KEY,
		nombre              VARCHAR(128) NOT NULL DEFAULT '',
		fecha_caducidad     VARCHAR(5)   NOT NULL DEFAULT '',
		codigo_autorizacion VARCHAR(3)   NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS pago (
		id               BIGSERIAL PRIMARY KEY,
		id_comercio      VARCHAR(16) NOT NULL,
		id_transaccion   VARCHAR(16) NOT NULL,
		importe          DOUBLE PRECISION NOT NULL,
		tarjeta_id       VARCHAR(19) NOT NULL REFERENCES tarjeta(numero) ON DELETE CASCADE,
		marca_tiempo     TIMESTAMPTZ NOT NULL DEFAULT now(),
		codigo_respuesta VARCHAR(3)  NOT NULL DEFAULT '000' CHECK (codigo_respuesta IN ('000', 'ERR')),
		CONSTRAINT unique_blocking_pago UNIQUE (id_transaccion, id_comercio)
	)`,
	`CREATE INDEX IF NOT EXISTS pago_id_comercio_idx ON pago (id_comercio)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS tarjeta (
		numero              VARCHAR(19)  PRIMARY KEY,
		nombre              VARCHAR(128) NOT NULL DEFAULT '',
		fecha_caducidad     VARCHAR(5)   NOT NULL DEFAULT '',
		codigo_autorizacion VARCHAR(3)   NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS pago (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		id_comercio      VARCHAR(16) NOT NULL,
		id_transaccion   VARCHAR(16) NOT NULL,
		importe          REAL        NOT NULL,
		tarjeta_id       VARCHAR(19) NOT NULL REFERENCES tarjeta(numero) ON DELETE CASCADE,
		marca_tiempo     TIMESTAMP   NOT NULL,
		codigo_respuesta VARCHAR(3)  NOT NULL DEFAULT '000' CHECK (codigo_respuesta IN ('000', 'ERR')),
		CONSTRAINT unique_blocking_pago UNIQUE (id_transaccion, id_comercio)
	)`,
	`CREATE INDEX IF NOT EXISTS pago_id_comercio_idx ON pago (id_comercio)`,
}
