package postgres

// Schema is the DDL the sample store and rule store expect. It is not
// applied automatically; operators run it once via migrate or psql.
const Schema = `
CREATE TABLE IF NOT EXISTS his_valeur (
    id_variable        BIGINT NOT NULL,
    date_acquisition   TIMESTAMPTZ NOT NULL,
    id_qualification   SMALLINT NOT NULL DEFAULT 0,
    date_insertion      TIMESTAMPTZ NOT NULL DEFAULT now(),
    val_brute          DOUBLE PRECISION,
    val_valide         DOUBLE PRECISION,
    PRIMARY KEY (id_variable, date_acquisition)
);

CREATE TABLE IF NOT EXISTS ref_regle (
    id_regle    BIGSERIAL PRIMARY KEY,
    lib_nom     TEXT NOT NULL,
    est_modele  BOOLEAN NOT NULL DEFAULT false,
    text_json   TEXT
);
`

// qualification states for his_valeur.id_qualification.
const (
	qualificationUnqualified = 0
	qualificationQualified   = 1
)
