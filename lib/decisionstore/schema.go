package decisionstore

const Schema = `
create table if not exists decisions (
	id integer primary key autoincrement,
	cycle_id text not null,
	item_id text not null,
	brand text not null,
	title text not null,
	outcome text not null,
	painted_count integer not null,
	replaced_count integer not null,
	locally_painted_count integer not null,
	hood_damage_kind text not null,
	decided_at integer not null
);

create index if not exists decisions_item_id on decisions(item_id);
create index if not exists decisions_decided_at on decisions(decided_at);
`
