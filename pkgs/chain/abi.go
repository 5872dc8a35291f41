package chain

// PublicVotingABI contains the simplified ABI for the public voting contract,
// limited to the functions the relayer consumes
const PublicVotingABI = `[
	{
		"inputs": [
			{"internalType": "uint256", "name": "_pollId", "type": "uint256"},
			{"internalType": "uint16", "name": "_candidateId", "type": "uint16"},
			{"internalType": "address", "name": "_voter", "type": "address"},
			{"internalType": "bytes", "name": "_signature", "type": "bytes"}
		],
		"name": "metaVote",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "uint256", "name": "_pollId", "type": "uint256"}],
		"name": "getPollDetails",
		"outputs": [
			{"internalType": "string", "name": "title", "type": "string"},
			{"internalType": "address", "name": "creator", "type": "address"},
			{"internalType": "uint64", "name": "endTime", "type": "uint64"},
			{"internalType": "uint16", "name": "candidateCount", "type": "uint16"},
			{"internalType": "uint64", "name": "voterCount", "type": "uint64"},
			{"internalType": "uint64", "name": "maxVoters", "type": "uint64"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint256", "name": "_pollId", "type": "uint256"},
			{"internalType": "uint16", "name": "_candidateId", "type": "uint16"}
		],
		"name": "getCandidate",
		"outputs": [
			{"internalType": "string", "name": "name", "type": "string"},
			{"internalType": "uint64", "name": "voteCount", "type": "uint64"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint256", "name": "_pollId", "type": "uint256"},
			{"internalType": "address", "name": "_voter", "type": "address"}
		],
		"name": "hasVoted",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "getPollCount",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "", "type": "address"},
			{"internalType": "address", "name": "", "type": "address"}
		],
		"name": "relayerAllowance",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "address", "name": "", "type": "address"}],
		"name": "authorizedRelayers",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// PrivateVotingABI contains the simplified ABI for the private voting
// contract. polls() exposes the designated whitelistSigner, which
// getPollDetails omits.
const PrivateVotingABI = `[
	{
		"inputs": [
			{"internalType": "uint256", "name": "_pollId", "type": "uint256"},
			{"internalType": "uint16", "name": "_candidateId", "type": "uint16"},
			{"internalType": "address", "name": "_voter", "type": "address"},
			{"internalType": "uint256", "name": "_expiry", "type": "uint256"},
			{"internalType": "bytes", "name": "_whitelistSignature", "type": "bytes"},
			{"internalType": "bytes", "name": "_voteSignature", "type": "bytes"}
		],
		"name": "metaVote",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"name": "polls",
		"outputs": [
			{"internalType": "string", "name": "title", "type": "string"},
			{"internalType": "address", "name": "creator", "type": "address"},
			{"internalType": "uint64", "name": "endTime", "type": "uint64"},
			{"internalType": "uint16", "name": "candidateCount", "type": "uint16"},
			{"internalType": "uint64", "name": "voterCount", "type": "uint64"},
			{"internalType": "uint64", "name": "maxVoters", "type": "uint64"},
			{"internalType": "address", "name": "whitelistSigner", "type": "address"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "uint256", "name": "_pollId", "type": "uint256"}],
		"name": "getPollDetails",
		"outputs": [
			{"internalType": "string", "name": "title", "type": "string"},
			{"internalType": "address", "name": "creator", "type": "address"},
			{"internalType": "uint64", "name": "endTime", "type": "uint64"},
			{"internalType": "uint16", "name": "candidateCount", "type": "uint16"},
			{"internalType": "uint64", "name": "voterCount", "type": "uint64"},
			{"internalType": "uint64", "name": "maxVoters", "type": "uint64"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint256", "name": "_pollId", "type": "uint256"},
			{"internalType": "uint16", "name": "_candidateId", "type": "uint16"}
		],
		"name": "getCandidate",
		"outputs": [
			{"internalType": "string", "name": "name", "type": "string"},
			{"internalType": "uint64", "name": "voteCount", "type": "uint64"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint256", "name": "_pollId", "type": "uint256"},
			{"internalType": "address", "name": "_voter", "type": "address"}
		],
		"name": "hasVoted",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "getPollCount",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "", "type": "address"},
			{"internalType": "address", "name": "", "type": "address"}
		],
		"name": "relayerAllowance",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "address", "name": "", "type": "address"}],
		"name": "authorizedRelayers",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	}
]`
