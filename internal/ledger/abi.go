package ledger

// tradeFinanceABI is the read surface of the trade-finance contract.
// Only the four entity accessors are included; the contract's
// state-transition functions are out of scope for this subsystem.
const tradeFinanceABI = `[
  {
    "inputs": [{"name": "tokenId", "type": "uint256"}],
    "name": "getInvoice",
    "outputs": [
      {"name": "tokenId", "type": "uint256"},
      {"name": "exporter", "type": "address"},
      {"name": "exporterCompany", "type": "string"},
      {"name": "importerCompany", "type": "string"},
      {"name": "importerEmail", "type": "string"},
      {"name": "shippingDate", "type": "uint256"},
      {"name": "shippingAmount", "type": "uint256"},
      {"name": "loanAmount", "type": "uint256"},
      {"name": "amountInvested", "type": "uint256"},
      {"name": "amountWithdrawn", "type": "uint256"},
      {"name": "status", "type": "uint8"},
      {"name": "poolId", "type": "uint256"},
      {"name": "ipfsHash", "type": "string"},
      {"name": "createdAt", "type": "uint256"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"name": "poolId", "type": "uint256"}],
    "name": "getPool",
    "outputs": [
      {"name": "poolId", "type": "uint256"},
      {"name": "name", "type": "string"},
      {"name": "startDate", "type": "uint256"},
      {"name": "endDate", "type": "uint256"},
      {"name": "totalLoanAmount", "type": "uint256"},
      {"name": "totalShippingAmount", "type": "uint256"},
      {"name": "amountInvested", "type": "uint256"},
      {"name": "amountDistributed", "type": "uint256"},
      {"name": "feePaid", "type": "uint256"},
      {"name": "status", "type": "uint8"},
      {"name": "invoiceIds", "type": "uint256[]"},
      {"name": "createdAt", "type": "uint256"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"name": "poolId", "type": "uint256"}],
    "name": "getPoolInvestors",
    "outputs": [{"name": "investors", "type": "address[]"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"name": "poolId", "type": "uint256"},
      {"name": "investor", "type": "address"}
    ],
    "name": "getInvestment",
    "outputs": [
      {"name": "investor", "type": "address"},
      {"name": "amount", "type": "uint256"},
      {"name": "percentage", "type": "uint256"},
      {"name": "timestamp", "type": "uint256"},
      {"name": "claimed", "type": "bool"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`
